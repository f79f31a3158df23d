package dao

// Well known filter names understood by session stores.
const (
	ParamStatus     = "Status"
	ParamWorkflowID = "WorkflowID"
	ParamReviewerID = "ReviewerID"
	ParamDocumentID = "DocumentID"
)

// Parameter is a named List filter; Value is a string or []string.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a filter matching any of values.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Values returns the parameter value as a slice.
func (p *Parameter) Values() []string {
	switch actual := p.Value.(type) {
	case string:
		return []string{actual}
	case []string:
		return actual
	}
	return nil
}

// Lookup returns the first parameter named name, or nil.
func Lookup(name string, parameters []*Parameter) *Parameter {
	for _, parameter := range parameters {
		if parameter != nil && parameter.Name == name {
			return parameter
		}
	}
	return nil
}
