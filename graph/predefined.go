package graph

// Predefined neuron IDs. They are created by New and never deleted.
const (
	Time ID = iota + 1
	TimeSpan
	Code
	Arguments
	Year
	Month
	Day
	Hour
	Minute
	Second
	Days
	Hours
	Minutes
	Seconds
	IntNeuron
	DoubleNeuron
	TextNeuron
	ClusterNeuron
	VariableNeuron
	StatementNeuron
	ResultStatementNeuron
	InstructionNeuron
	LockNeuron
	True
	False
	Empty

	// firstFreeID is the first ID handed out by the Brain. IDs below it
	// are reserved for predefined tags.
	firstFreeID ID = 1024
)

var predefinedNames = map[ID]string{
	Time:                  "Time",
	TimeSpan:              "TimeSpan",
	Code:                  "Code",
	Arguments:             "Arguments",
	Year:                  "Year",
	Month:                 "Month",
	Day:                   "Day",
	Hour:                  "Hour",
	Minute:                "Minute",
	Second:                "Second",
	Days:                  "Days",
	Hours:                 "Hours",
	Minutes:               "Minutes",
	Seconds:               "Seconds",
	IntNeuron:             "IntNeuron",
	DoubleNeuron:          "DoubleNeuron",
	TextNeuron:            "TextNeuron",
	ClusterNeuron:         "NeuronCluster",
	VariableNeuron:        "Variable",
	StatementNeuron:       "Statement",
	ResultStatementNeuron: "ResultStatement",
	InstructionNeuron:     "Instruction",
	LockNeuron:            "LockExpression",
	True:                  "True",
	False:                 "False",
	Empty:                 "Empty",
}

var predefinedByName = func() map[string]ID {
	m := make(map[string]ID, len(predefinedNames))
	for id, name := range predefinedNames {
		m[name] = id
	}
	return m
}()

// PredefinedID looks up a predefined neuron by name.
func PredefinedID(name string) (ID, bool) {
	id, ok := predefinedByName[name]
	return id, ok
}

// PredefinedName returns the name of a predefined neuron.
func PredefinedName(id ID) (string, bool) {
	name, ok := predefinedNames[id]
	return name, ok
}

// typeTag picks the TypeOfNeuronID for a payload.
func typeTag(p Payload) ID {
	switch s := p.(type) {
	case *IntValue:
		return IntNeuron
	case *DoubleValue:
		return DoubleNeuron
	case *TextValue:
		return TextNeuron
	case *Cluster:
		return ClusterNeuron
	case *Variable:
		return VariableNeuron
	case *InstructionNode:
		return InstructionNeuron
	case *Statement:
		if s.Result {
			return ResultStatementNeuron
		}
		return StatementNeuron
	case *LockExpression:
		return LockNeuron
	}
	return NoID
}
