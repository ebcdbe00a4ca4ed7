package hooks

import "strings"

// ErrorKind is the taxonomy used to classify post-action failures.
type ErrorKind string

const (
	ErrorKindTypeMismatch     ErrorKind = "type-mismatch"
	ErrorKindSyntaxError      ErrorKind = "syntax-error"
	ErrorKindModuleNotFound   ErrorKind = "module-not-found"
	ErrorKindFileNotFound     ErrorKind = "file-not-found"
	ErrorKindPermissionDenied ErrorKind = "permission-denied"
	ErrorKindNullReference    ErrorKind = "null-reference"
	ErrorKindGeneric          ErrorKind = "generic"
)

// Classify maps captured output text to an ErrorKind. Matching is
// case-insensitive substring search; the specific kinds are checked before
// null references, and Generic is the fallback when nothing matches.
func Classify(output string) ErrorKind {
	text := strings.ToLower(output)

	switch {
	case containsAny(text,
		"modulenotfounderror",
		"no module named",
		"cannot find module",
		"importerror",
		"package not found"):
		return ErrorKindModuleNotFound

	case containsAny(text,
		"filenotfounderror",
		"no such file or directory",
		"enoent",
		"file not found"):
		return ErrorKindFileNotFound

	case containsAny(text,
		"permissionerror",
		"permission denied",
		"eacces",
		"operation not permitted"):
		return ErrorKindPermissionDenied

	case containsAny(text,
		"syntaxerror",
		"syntax error",
		"unexpected token",
		"unexpected eof",
		"parse error"):
		return ErrorKindSyntaxError

	case containsAny(text,
		"typeerror",
		"type error",
		"type mismatch",
		"incompatible type",
		"cannot use",
		"mismatched types"):
		return ErrorKindTypeMismatch

	case containsAny(text,
		"nonetype",
		"null pointer",
		"nil pointer",
		"nullreferenceexception",
		"undefined is not",
		"cannot read properties of null",
		"cannot read properties of undefined"):
		return ErrorKindNullReference

	default:
		return ErrorKindGeneric
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
