package symbols

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown symbol kind")

// Kind is a declaration kind. Values follow the language server protocol
// numbering (1-26); the zero value is invalid.
type Kind int

const (
	KindFile Kind = iota + 1
	KindModule
	KindNamespace
	KindPackage
	KindClass
	KindMethod
	KindProperty
	KindField
	KindConstructor
	KindEnum
	KindInterface
	KindFunction
	KindVariable
	KindConstant
	KindString
	KindNumber
	KindBoolean
	KindArray
	KindObject
	KindKey
	KindNull
	KindEnumMember
	KindStruct
	KindEvent
	KindOperator
	KindTypeParameter
)

var kindNames = [...]string{
	KindFile:          "file",
	KindModule:        "module",
	KindNamespace:     "namespace",
	KindPackage:       "package",
	KindClass:         "class",
	KindMethod:        "method",
	KindProperty:      "property",
	KindField:         "field",
	KindConstructor:   "constructor",
	KindEnum:          "enum",
	KindInterface:     "interface",
	KindFunction:      "function",
	KindVariable:      "variable",
	KindConstant:      "constant",
	KindString:        "string",
	KindNumber:        "number",
	KindBoolean:       "boolean",
	KindArray:         "array",
	KindObject:        "object",
	KindKey:           "key",
	KindNull:          "null",
	KindEnumMember:    "enumMember",
	KindStruct:        "struct",
	KindEvent:         "event",
	KindOperator:      "operator",
	KindTypeParameter: "typeParameter",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if name != "" {
			m[name] = Kind(k)
		}
	}
	return m
}()

func (k Kind) Valid() bool {
	return k >= KindFile && k <= KindTypeParameter
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	if k, ok := kindsByName[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// KindFromLSP maps a protocol kind number.
func KindFromLSP(n int) (Kind, error) {
	k := Kind(n)
	if !k.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, n)
	}
	return k, nil
}

func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return json.Marshal(kindNames[k])
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownKind, string(data))
	}
	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
