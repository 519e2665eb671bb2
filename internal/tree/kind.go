package tree

// Kind identifies the syntactic variant of a Node.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Scopes.
	KindModule
	KindFunctionDef
	KindLambda
	KindClassDef
	KindListComp
	KindSetComp
	KindDictComp
	KindGeneratorExp

	// Statements.
	KindAssign
	KindAugAssign
	KindAnnAssign
	KindDelete
	KindExpr
	KindReturn
	KindPass
	KindBreak
	KindContinue
	KindRaise
	KindAssert
	KindGlobal
	KindNonlocal
	KindImport
	KindImportFrom
	KindIf
	KindFor
	KindWhile
	KindWith
	KindTry
	KindExceptHandler

	// Expressions.
	KindName
	KindAssignName
	KindDelName
	KindAttribute
	KindAssignAttr
	KindDelAttr
	KindCall
	KindKeyword
	KindStarred
	KindBinOp
	KindUnaryOp
	KindBoolOp
	KindCompare
	KindIfExp
	KindSubscript
	KindSlice
	KindConst
	KindList
	KindTuple
	KindSet
	KindDict
	KindNamedExpr
	KindYield
	KindYieldFrom
	KindAwait
	KindJoinedStr

	// Helpers.
	KindArguments
	KindComprehension
	KindDecorators

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:       "Invalid",
	KindModule:        "Module",
	KindFunctionDef:   "FunctionDef",
	KindLambda:        "Lambda",
	KindClassDef:      "ClassDef",
	KindListComp:      "ListComp",
	KindSetComp:       "SetComp",
	KindDictComp:      "DictComp",
	KindGeneratorExp:  "GeneratorExp",
	KindAssign:        "Assign",
	KindAugAssign:     "AugAssign",
	KindAnnAssign:     "AnnAssign",
	KindDelete:        "Delete",
	KindExpr:          "Expr",
	KindReturn:        "Return",
	KindPass:          "Pass",
	KindBreak:         "Break",
	KindContinue:      "Continue",
	KindRaise:         "Raise",
	KindAssert:        "Assert",
	KindGlobal:        "Global",
	KindNonlocal:      "Nonlocal",
	KindImport:        "Import",
	KindImportFrom:    "ImportFrom",
	KindIf:            "If",
	KindFor:           "For",
	KindWhile:         "While",
	KindWith:          "With",
	KindTry:           "Try",
	KindExceptHandler: "ExceptHandler",
	KindName:          "Name",
	KindAssignName:    "AssignName",
	KindDelName:       "DelName",
	KindAttribute:     "Attribute",
	KindAssignAttr:    "AssignAttr",
	KindDelAttr:       "DelAttr",
	KindCall:          "Call",
	KindKeyword:       "Keyword",
	KindStarred:       "Starred",
	KindBinOp:         "BinOp",
	KindUnaryOp:       "UnaryOp",
	KindBoolOp:        "BoolOp",
	KindCompare:       "Compare",
	KindIfExp:         "IfExp",
	KindSubscript:     "Subscript",
	KindSlice:         "Slice",
	KindConst:         "Const",
	KindList:          "List",
	KindTuple:         "Tuple",
	KindSet:           "Set",
	KindDict:          "Dict",
	KindNamedExpr:     "NamedExpr",
	KindYield:         "Yield",
	KindYieldFrom:     "YieldFrom",
	KindAwait:         "Await",
	KindJoinedStr:     "JoinedStr",
	KindArguments:     "Arguments",
	KindComprehension: "Comprehension",
	KindDecorators:    "Decorators",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "Invalid"
}

// KindByName maps the String form of a Kind back to the Kind.
func KindByName(name string) (Kind, bool) {
	for k, s := range kindNames {
		if s == name {
			return Kind(k), true
		}
	}
	return KindInvalid, false
}

// IsStatement reports whether nodes of this kind are statements.
func (k Kind) IsStatement() bool {
	switch k {
	case KindFunctionDef, KindClassDef,
		KindAssign, KindAugAssign, KindAnnAssign, KindDelete, KindExpr,
		KindReturn, KindPass, KindBreak, KindContinue, KindRaise, KindAssert,
		KindGlobal, KindNonlocal, KindImport, KindImportFrom,
		KindIf, KindFor, KindWhile, KindWith, KindTry, KindExceptHandler:
		return true
	}
	return false
}

// IsExpression reports whether nodes of this kind are expressions.
func (k Kind) IsExpression() bool {
	switch k {
	case KindLambda, KindListComp, KindSetComp, KindDictComp, KindGeneratorExp:
		return true
	}
	return k >= KindName && k <= KindJoinedStr
}

// IsScope reports whether nodes of this kind own a locals map.
func (k Kind) IsScope() bool {
	switch k {
	case KindModule, KindFunctionDef, KindLambda, KindClassDef,
		KindListComp, KindSetComp, KindDictComp, KindGeneratorExp:
		return true
	}
	return false
}

// IsFrame reports whether nodes of this kind are frames. Comprehension
// scopes are scopes but not frames.
func (k Kind) IsFrame() bool {
	switch k {
	case KindModule, KindFunctionDef, KindLambda, KindClassDef:
		return true
	}
	return false
}

// IsFunction reports whether nodes of this kind are function-like scopes.
func (k Kind) IsFunction() bool {
	return k == KindFunctionDef || k == KindLambda
}

// IsComprehension reports whether the kind is a comprehension scope.
func (k Kind) IsComprehension() bool {
	switch k {
	case KindListComp, KindSetComp, KindDictComp, KindGeneratorExp:
		return true
	}
	return false
}

// Field names a positional child slot.
type Field uint8

const (
	FieldBody Field = iota
	FieldOrelse
	FieldFinalbody
	FieldHandlers
	FieldTest
	FieldTargets
	FieldTarget
	FieldValue
	FieldIter
	FieldBases
	FieldKeywords
	FieldDecorators
	FieldArgs
	FieldFunc
	FieldLeft
	FieldRight
	FieldOperand
	FieldValues
	FieldElts
	FieldItems
	FieldType
	FieldName
	FieldIfs
	FieldGenerators
	FieldElt
	FieldKey
	FieldReturns
	FieldPosonlyArgs
	FieldVararg
	FieldKwonlyArgs
	FieldKwarg
	FieldDefaults
	FieldKwDefaults
	FieldAnnotation
	FieldSlice
	FieldLower
	FieldUpper
	FieldStep
	FieldComparators
	FieldExc
	FieldCause
	FieldMsg
	FieldExpr
	FieldNodes

	fieldCount
)

var fieldNames = [fieldCount]string{
	"body", "orelse", "finalbody", "handlers", "test", "targets", "target",
	"value", "iter", "bases", "keywords", "decorators", "args", "func",
	"left", "right", "operand", "values", "elts", "items", "type", "name",
	"ifs", "generators", "elt", "key", "returns", "posonlyargs", "vararg",
	"kwonlyargs", "kwarg", "defaults", "kw_defaults", "annotation", "slice",
	"lower", "upper", "step", "comparators", "exc", "cause", "msg", "expr",
	"nodes",
}

func (f Field) String() string {
	if f < fieldCount {
		return fieldNames[f]
	}
	return "invalid"
}

// FieldByName maps a field name back to the Field.
func FieldByName(name string) (Field, bool) {
	for f, s := range fieldNames {
		if s == name {
			return Field(f), true
		}
	}
	return 0, false
}

// Shape describes how a field stores children.
type Shape uint8

const (
	// Single holds one child or NoNode.
	Single Shape = iota
	// Seq holds an ordered sequence; NoNode entries keep alignment.
	Seq
	// Pairs holds (key, value) pairs flattened as k0, v0, k1, v1, ...
	Pairs
)

// Slot is one entry in a kind's field schema.
type Slot struct {
	Field Field
	Shape Shape
}

func single(f Field) Slot { return Slot{Field: f, Shape: Single} }
func seq(f Field) Slot    { return Slot{Field: f, Shape: Seq} }
func pairs(f Field) Slot  { return Slot{Field: f, Shape: Pairs} }

// schema lists each kind's fields in child iteration order.
var schema = [kindCount][]Slot{
	KindModule:        {seq(FieldBody)},
	KindFunctionDef:   {single(FieldDecorators), single(FieldArgs), single(FieldReturns), seq(FieldBody)},
	KindLambda:        {single(FieldArgs), single(FieldBody)},
	KindClassDef:      {single(FieldDecorators), seq(FieldBases), seq(FieldKeywords), seq(FieldBody)},
	KindListComp:      {single(FieldElt), seq(FieldGenerators)},
	KindSetComp:       {single(FieldElt), seq(FieldGenerators)},
	KindGeneratorExp:  {single(FieldElt), seq(FieldGenerators)},
	KindDictComp:      {single(FieldKey), single(FieldValue), seq(FieldGenerators)},
	KindAssign:        {seq(FieldTargets), single(FieldValue)},
	KindAugAssign:     {single(FieldTarget), single(FieldValue)},
	KindAnnAssign:     {single(FieldTarget), single(FieldAnnotation), single(FieldValue)},
	KindDelete:        {seq(FieldTargets)},
	KindExpr:          {single(FieldValue)},
	KindReturn:        {single(FieldValue)},
	KindRaise:         {single(FieldExc), single(FieldCause)},
	KindAssert:        {single(FieldTest), single(FieldMsg)},
	KindIf:            {single(FieldTest), seq(FieldBody), seq(FieldOrelse)},
	KindFor:           {single(FieldTarget), single(FieldIter), seq(FieldBody), seq(FieldOrelse)},
	KindWhile:         {single(FieldTest), seq(FieldBody), seq(FieldOrelse)},
	KindWith:          {pairs(FieldItems), seq(FieldBody)},
	KindTry:           {seq(FieldBody), seq(FieldHandlers), seq(FieldOrelse), seq(FieldFinalbody)},
	KindExceptHandler: {single(FieldType), single(FieldName), seq(FieldBody)},
	KindAttribute:     {single(FieldExpr)},
	KindAssignAttr:    {single(FieldExpr)},
	KindDelAttr:       {single(FieldExpr)},
	KindCall:          {single(FieldFunc), seq(FieldArgs), seq(FieldKeywords)},
	KindKeyword:       {single(FieldValue)},
	KindStarred:       {single(FieldValue)},
	KindBinOp:         {single(FieldLeft), single(FieldRight)},
	KindUnaryOp:       {single(FieldOperand)},
	KindBoolOp:        {seq(FieldValues)},
	KindCompare:       {single(FieldLeft), seq(FieldComparators)},
	KindIfExp:         {single(FieldTest), single(FieldBody), single(FieldOrelse)},
	KindSubscript:     {single(FieldValue), single(FieldSlice)},
	KindSlice:         {single(FieldLower), single(FieldUpper), single(FieldStep)},
	KindList:          {seq(FieldElts)},
	KindTuple:         {seq(FieldElts)},
	KindSet:           {seq(FieldElts)},
	KindDict:          {pairs(FieldItems)},
	KindNamedExpr:     {single(FieldTarget), single(FieldValue)},
	KindYield:         {single(FieldValue)},
	KindYieldFrom:     {single(FieldValue)},
	KindAwait:         {single(FieldValue)},
	KindJoinedStr:     {seq(FieldValues)},
	KindArguments: {
		seq(FieldPosonlyArgs), seq(FieldArgs), single(FieldVararg),
		seq(FieldKwonlyArgs), single(FieldKwarg),
		seq(FieldDefaults), seq(FieldKwDefaults),
	},
	KindComprehension: {single(FieldTarget), single(FieldIter), seq(FieldIfs)},
	KindDecorators:    {seq(FieldNodes)},
}

// Schema returns the field layout of a kind.
func Schema(k Kind) []Slot {
	if k < kindCount {
		return schema[k]
	}
	return nil
}

func slotIndex(k Kind, f Field) int {
	for i, s := range Schema(k) {
		if s.Field == f {
			return i
		}
	}
	return -1
}
