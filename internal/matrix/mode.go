package matrix

import (
	"fmt"
	"strings"
)

// Mode is a protection configuration: the compiler setup the attack
// generator was built with, plus an optional runtime monitor.
type Mode string

const (
	GCC            Mode = "gcc"
	Clang          Mode = "clang"
	ClangCFI       Mode = "clang_cfi"
	ClangSideCFI   Mode = "clang_sidecfi"
	ClangSafeStack Mode = "clang_safestack"
	ClangSideStack Mode = "clang_sidestack"
)

// AllModes lists every mode in reporting order.
var AllModes = []Mode{GCC, Clang, ClangCFI, ClangSideCFI, ClangSafeStack, ClangSideStack}

// Edge is the class of control transfer a mode protects.
type Edge int

const (
	Unprotected Edge = iota
	ForwardEdge
	BackwardEdge
)

func (e Edge) String() string {
	switch e {
	case ForwardEdge:
		return "forward-edge"
	case BackwardEdge:
		return "backward-edge"
	default:
		return "unprotected"
	}
}

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	for _, m := range AllModes {
		if string(m) == name {
			return m, nil
		}
	}
	names := make([]string, len(AllModes))
	for i, m := range AllModes {
		names[i] = string(m)
	}
	return "", fmt.Errorf("unknown mode %q (want one of %s)", name, strings.Join(names, ", "))
}

// Edge reports which class of control transfer the mode guards.
func (m Mode) Edge() Edge {
	switch m {
	case ClangCFI, ClangSideCFI:
		return ForwardEdge
	case ClangSafeStack, ClangSideStack:
		return BackwardEdge
	default:
		return Unprotected
	}
}

// Supervised reports whether attempts in this mode run under a monitor process.
func (m Mode) Supervised() bool {
	return m == ClangSideCFI || m == ClangSideStack
}

// Filter returns the mode's applicability filter.
func (m Mode) Filter() Filter {
	switch m.Edge() {
	case ForwardEdge:
		return Filter{pointers: isForwardPointer, attacks: isNonROP}
	case BackwardEdge:
		return Filter{pointers: func(p CodePointer) bool { return p == Ret }}
	default:
		return Filter{}
	}
}

// Filter restricts the code pointers and attack classes a mode is tested
// against. A nil predicate admits everything.
type Filter struct {
	pointers func(CodePointer) bool
	attacks  func(AttackClass) bool
}

func (f Filter) AllowsPointer(p CodePointer) bool {
	return f.pointers == nil || f.pointers(p)
}

func (f Filter) AllowsAttack(a AttackClass) bool {
	return f.attacks == nil || f.attacks(a)
}

// Allows reports whether the whole tuple passes the filter.
func (f Filter) Allows(p Params) bool {
	return f.AllowsPointer(p.Pointer) && f.AllowsAttack(p.Attack)
}

func isForwardPointer(p CodePointer) bool {
	s := string(p)
	return strings.HasPrefix(s, "funcptr") ||
		strings.HasPrefix(s, "structfuncptr") ||
		strings.HasPrefix(s, "longjmp")
}

func isNonROP(a AttackClass) bool {
	return a != ROP
}
