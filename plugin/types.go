package plugin

// MethodDescriptor describes a plugin method.
type MethodDescriptor struct {
	// Name is the method name as used in calls.
	Name string `json:"name" yaml:"name"`

	// Description is a human-readable explanation of the method.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Descriptor describes a plugin built with New.
type Descriptor struct {
	Name        string             `json:"name" yaml:"name"`
	Version     string             `json:"version" yaml:"version"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Methods     []MethodDescriptor `json:"methods" yaml:"methods"`
}
