package model

// Metatype is the closed set of element kinds the engine understands.
type Metatype int

const (
	MetatypeUnknown Metatype = iota

	// Namespaces
	Namespace
	Package

	// Classifiers
	Type
	Classifier
	Class
	DataType
	Structure
	Behavior
	Function
	PartDefinition
	ItemDefinition
	AttributeDefinition
	PortDefinition
	ActionDefinition
	CalculationDefinition
	EnumerationDefinition

	// Features
	Feature
	Step
	PartUsage
	ItemUsage
	AttributeUsage
	PortUsage
	ReferenceUsage
	ActionUsage

	// Expressions
	Expression
	OperatorExpression
	FeatureReferenceExpression
	InvocationExpression
	FeatureChainExpression
	CollectExpression

	// Literals
	LiteralReal
	LiteralInteger
	LiteralRational
	LiteralString
	LiteralBoolean
	LiteralInfinity
	NullExpression

	MultiplicityRange

	// Abstract relationships
	Relationship
	Specialization
	Featuring

	// Concrete relationships
	Membership
	OwningMembership
	FeatureMembership
	ParameterMembership
	ReturnParameterMembership
	ResultExpressionMembership
	FeatureValue
	Subclassification
	FeatureTyping
	Subsetting
	Redefinition
	ReferenceSubsetting
	TypeFeaturing
	Dependency

	metatypeCount
)

var metatypeNames = [metatypeCount]string{
	MetatypeUnknown:            "Unknown",
	Namespace:                  "Namespace",
	Package:                    "Package",
	Type:                       "Type",
	Classifier:                 "Classifier",
	Class:                      "Class",
	DataType:                   "DataType",
	Structure:                  "Structure",
	Behavior:                   "Behavior",
	Function:                   "Function",
	PartDefinition:             "PartDefinition",
	ItemDefinition:             "ItemDefinition",
	AttributeDefinition:        "AttributeDefinition",
	PortDefinition:             "PortDefinition",
	ActionDefinition:           "ActionDefinition",
	CalculationDefinition:      "CalculationDefinition",
	EnumerationDefinition:      "EnumerationDefinition",
	Feature:                    "Feature",
	Step:                       "Step",
	PartUsage:                  "PartUsage",
	ItemUsage:                  "ItemUsage",
	AttributeUsage:             "AttributeUsage",
	PortUsage:                  "PortUsage",
	ReferenceUsage:             "ReferenceUsage",
	ActionUsage:                "ActionUsage",
	Expression:                 "Expression",
	OperatorExpression:         "OperatorExpression",
	FeatureReferenceExpression: "FeatureReferenceExpression",
	InvocationExpression:       "InvocationExpression",
	FeatureChainExpression:     "FeatureChainExpression",
	CollectExpression:          "CollectExpression",
	LiteralReal:                "LiteralReal",
	LiteralInteger:             "LiteralInteger",
	LiteralRational:            "LiteralRational",
	LiteralString:              "LiteralString",
	LiteralBoolean:             "LiteralBoolean",
	LiteralInfinity:            "LiteralInfinity",
	NullExpression:             "NullExpression",
	MultiplicityRange:          "MultiplicityRange",
	Relationship:               "Relationship",
	Specialization:             "Specialization",
	Featuring:                  "Featuring",
	Membership:                 "Membership",
	OwningMembership:           "OwningMembership",
	FeatureMembership:          "FeatureMembership",
	ParameterMembership:        "ParameterMembership",
	ReturnParameterMembership:  "ReturnParameterMembership",
	ResultExpressionMembership: "ResultExpressionMembership",
	FeatureValue:               "FeatureValue",
	Subclassification:          "Subclassification",
	FeatureTyping:              "FeatureTyping",
	Subsetting:                 "Subsetting",
	Redefinition:               "Redefinition",
	ReferenceSubsetting:        "ReferenceSubsetting",
	TypeFeaturing:              "TypeFeaturing",
	Dependency:                 "Dependency",
}

var metatypeByName = func() map[string]Metatype {
	m := make(map[string]Metatype, metatypeCount)
	for i, n := range metatypeNames {
		m[n] = Metatype(i)
	}
	return m
}()

func (m Metatype) String() string {
	if m < 0 || m >= metatypeCount {
		return metatypeNames[MetatypeUnknown]
	}
	return metatypeNames[m]
}

// ParseMetatype maps a metatype name to its enum value. Unknown names map to
// MetatypeUnknown.
func ParseMetatype(name string) Metatype {
	if m, ok := metatypeByName[name]; ok {
		return m
	}
	return MetatypeUnknown
}

// AllMetatypes returns every known metatype except MetatypeUnknown.
func AllMetatypes() []Metatype {
	out := make([]Metatype, 0, metatypeCount-1)
	for m := MetatypeUnknown + 1; m < metatypeCount; m++ {
		out = append(out, m)
	}
	return out
}

// IsRelationship reports whether elements of this metatype become edges.
func (m Metatype) IsRelationship() bool {
	return m >= Relationship && m < metatypeCount
}

// IsAbstractRelationship reports whether the metatype is an abstract
// relationship kind that is recorded as typed edges instead of collapsed.
func (m Metatype) IsAbstractRelationship() bool {
	switch m {
	case Relationship, Specialization, Featuring:
		return true
	}
	return false
}

// IsMembership reports whether the relationship links an owner to a member.
func (m Metatype) IsMembership() bool {
	switch m {
	case Membership, OwningMembership, FeatureMembership, ParameterMembership,
		ReturnParameterMembership, ResultExpressionMembership:
		return true
	}
	return false
}

func (m Metatype) IsNamespace() bool {
	return m == Namespace || m == Package
}

func (m Metatype) IsClassifier() bool {
	return m >= Type && m <= EnumerationDefinition
}

// IsDataClassifier reports whether instances of the classifier are values.
func (m Metatype) IsDataClassifier() bool {
	switch m {
	case DataType, AttributeDefinition, EnumerationDefinition:
		return true
	}
	return false
}

func (m Metatype) IsFeature() bool {
	return m >= Feature && m <= ActionUsage
}

// IsExpression covers every expression kind except literals.
func (m Metatype) IsExpression() bool {
	return m >= Expression && m <= CollectExpression
}

func (m Metatype) IsLiteral() bool {
	return m >= LiteralReal && m <= NullExpression
}

// IsAttributeLike reports whether features of this metatype hold values
// rather than occurrences.
func (m Metatype) IsAttributeLike() bool {
	return m == AttributeUsage
}
