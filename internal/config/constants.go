package config

// ConfigFileName is looked up from the working directory upward.
const ConfigFileName = "dispatch.yaml"

// WorldFileExtensions are the recognized world definition extensions.
var WorldFileExtensions = []string{".yaml", ".yml"}

// Built-in type names
const (
	AnyTypeName            = "Any"
	NumberTypeName         = "Number"
	RealTypeName           = "Real"
	IntegerTypeName        = "Integer"
	AbstractFloatTypeName  = "AbstractFloat"
	IntTypeName            = "Int"
	FloatTypeName          = "Float"
	AbstractStringTypeName = "AbstractString"
	StringTypeName         = "String"
	CharTypeName           = "Char"
	BoolTypeName           = "Bool"
	NothingTypeName        = "Nothing"
	TupleTypeName          = "Tuple"
	FunctionTypeName       = "Function"
)

// Built-in function names
const (
	AddFuncName    = "+"
	SubFuncName    = "-"
	MulFuncName    = "*"
	DivFuncName    = "/"
	PowFuncName    = "^"
	EqFuncName     = "=="
	LessFuncName   = "<"
	LessEqFuncName = "<="
	NotFuncName    = "!"
	TypeOfFuncName = "typeof"
	IsaFuncName    = "isa"
	TupleFuncName  = "tuple"
)

// Defaults
const (
	DefaultMaxCandidates = 3
	DefaultMaxDepth      = 10000
	DefaultServerAddr    = "127.0.0.1:7411"
	DefaultLogLevel      = "warn"
	DefaultLogFormat     = "text"
)
