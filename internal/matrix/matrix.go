package matrix

import "fmt"

type Technique string

const (
	Direct   Technique = "direct"
	Indirect Technique = "indirect"
)

type Location string

const (
	Stack Location = "stack"
	Heap  Location = "heap"
	BSS   Location = "bss"
	Data  Location = "data"
)

type CodePointer string

const (
	Ret                CodePointer = "ret"
	BasePtr            CodePointer = "baseptr"
	FuncPtrStackVar    CodePointer = "funcptrstackvar"
	FuncPtrStackParam  CodePointer = "funcptrstackparam"
	FuncPtrHeap        CodePointer = "funcptrheap"
	FuncPtrBSS         CodePointer = "funcptrbss"
	FuncPtrData        CodePointer = "funcptrdata"
	StructFuncPtrStack CodePointer = "structfuncptrstack"
	StructFuncPtrHeap  CodePointer = "structfuncptrheap"
	StructFuncPtrBSS   CodePointer = "structfuncptrbss"
	StructFuncPtrData  CodePointer = "structfuncptrdata"
	LongjmpStackVar    CodePointer = "longjmpstackvar"
	LongjmpStackParam  CodePointer = "longjmpstackparam"
	LongjmpHeap        CodePointer = "longjmpheap"
	LongjmpBSS         CodePointer = "longjmpbss"
	LongjmpData        CodePointer = "longjmpdata"
)

type AttackClass string

const (
	NoNop            AttackClass = "nonop"
	SimpleNop        AttackClass = "simplenop"
	SimpleNopEquival AttackClass = "simplenopequival"
	ReturnToLibc     AttackClass = "r2libc"
	ROP              AttackClass = "rop"
)

type Function string

const (
	Memcpy   Function = "memcpy"
	Strcpy   Function = "strcpy"
	Strncpy  Function = "strncpy"
	Sprintf  Function = "sprintf"
	Snprintf Function = "snprintf"
	Strcat   Function = "strcat"
	Strncat  Function = "strncat"
	Sscanf   Function = "sscanf"
	Fscanf   Function = "fscanf"
	Homebrew Function = "homebrew"
)

// Params is one point in the attack matrix. It is comparable and used
// directly as an aggregation key.
type Params struct {
	Technique Technique
	Location  Location
	Pointer   CodePointer
	Attack    AttackClass
	Function  Function
}

// Args returns the short flags understood by the attack generator.
func (p Params) Args() []string {
	return []string{
		"-t", string(p.Technique),
		"-l", string(p.Location),
		"-c", string(p.Pointer),
		"-i", string(p.Attack),
		"-f", string(p.Function),
	}
}

// String renders the parameters with fixed column widths so that log lines
// for different trials line up.
func (p Params) String() string {
	return fmt.Sprintf("-t %8s -l %5s -c %18s -i %16s -f %8s",
		p.Technique, p.Location, p.Pointer, p.Attack, p.Function)
}

// Universe is the full domain of every parameter axis, in iteration order.
type Universe struct {
	Techniques []Technique
	Locations  []Location
	Pointers   []CodePointer
	Attacks    []AttackClass
	Functions  []Function
}

// DefaultUniverse returns the complete RIPE parameter space.
func DefaultUniverse() Universe {
	return Universe{
		Techniques: []Technique{Direct, Indirect},
		Locations:  []Location{Stack, Heap, BSS, Data},
		Pointers: []CodePointer{
			Ret, BasePtr,
			FuncPtrStackVar, FuncPtrStackParam, FuncPtrHeap, FuncPtrBSS, FuncPtrData,
			StructFuncPtrStack, StructFuncPtrHeap, StructFuncPtrBSS, StructFuncPtrData,
			LongjmpStackVar, LongjmpStackParam, LongjmpHeap, LongjmpBSS, LongjmpData,
		},
		Attacks:   []AttackClass{NoNop, SimpleNop, SimpleNopEquival, ReturnToLibc, ROP},
		Functions: []Function{Memcpy, Strcpy, Strncpy, Sprintf, Snprintf, Strcat, Strncat, Sscanf, Fscanf, Homebrew},
	}
}

// WithTechniques returns a copy of u restricted to the given techniques.
func (u Universe) WithTechniques(ts ...Technique) Universe {
	u.Techniques = append([]Technique(nil), ts...)
	return u
}

// ParseTechniques maps the CLI selector (direct, indirect or both) to the
// techniques it covers.
func ParseTechniques(sel string) ([]Technique, error) {
	switch sel {
	case "both":
		return []Technique{Direct, Indirect}, nil
	case string(Direct):
		return []Technique{Direct}, nil
	case string(Indirect):
		return []Technique{Indirect}, nil
	default:
		return nil, fmt.Errorf("unknown technique %q (want direct, indirect or both)", sel)
	}
}

// Enumerate yields every trial of the universe that is meaningful for the
// mode. Order is technique, location, code pointer, attack, function from
// outermost to innermost, and is stable across runs.
func Enumerate(mode Mode, u Universe) []Params {
	filter := mode.Filter()
	var out []Params
	for _, tech := range u.Techniques {
		for _, loc := range u.Locations {
			for _, ptr := range u.Pointers {
				if !filter.AllowsPointer(ptr) {
					continue
				}
				for _, atk := range u.Attacks {
					if !filter.AllowsAttack(atk) {
						continue
					}
					for _, fn := range u.Functions {
						out = append(out, Params{
							Technique: tech,
							Location:  loc,
							Pointer:   ptr,
							Attack:    atk,
							Function:  fn,
						})
					}
				}
			}
		}
	}
	return out
}
