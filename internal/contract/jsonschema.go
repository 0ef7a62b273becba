package contract

type ObjectSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

func (s Shape) JSONSchema() ObjectSchema {
	out := ObjectSchema{
		Type:       "object",
		Properties: make(map[string]Property, len(s)),
		Required:   s.Names(),
	}
	for _, f := range s {
		p := Property{Type: string(f.Kind), Description: f.Description}
		if f.Kind == KindStringList {
			p.Items = &Property{Type: "string"}
		}
		out.Properties[f.Name] = p
	}
	return out
}
