package token

type Type int

const (
	EOF Type = iota
	LParen
	RParen
	LBracket
	RBracket
	Number
	Ident
	True
	False
	Nil
	If
	Let
	Do
	Define
)

var KeywordMap = map[string]Type{
	"true":   True,
	"false":  False,
	"nil":    Nil,
	"if":     If,
	"let":    Let,
	"do":     Do,
	"define": Define,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	TypeStrings[EOF] = "end of file"
	TypeStrings[LParen] = "'('"
	TypeStrings[RParen] = "')'"
	TypeStrings[LBracket] = "'['"
	TypeStrings[RBracket] = "']'"
	TypeStrings[Number] = "number"
	TypeStrings[Ident] = "identifier"
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}

// Describe renders a token the way diagnostics quote it.
func (t Token) Describe() string {
	switch t.Type {
	case Number, Ident:
		return "'" + t.Value + "'"
	default:
		return t.Type.String()
	}
}
