package domain

type ModuleOutput struct {
	Module string `json:"module"`
	Data   any    `json:"data"`
}

type StructuredOutput struct {
	QueryType QueryType      `json:"query_type"`
	Structure string         `json:"structure"`
	Modules   []ModuleOutput `json:"modules"`
	RawText   string         `json:"raw_text"`
}

func (o StructuredOutput) Module(name string) (ModuleOutput, bool) {
	for _, m := range o.Modules {
		if m.Module == name {
			return m, true
		}
	}
	return ModuleOutput{}, false
}
