package monitor

import "os"

// FailFinalize makes every Finalize delivery to p fail with err.
func FailFinalize(p *Process, err error) {
	deliver := p.signal
	p.signal = func(sig os.Signal) error {
		if sig == Finalize.Signal() {
			return err
		}
		return deliver(sig)
	}
}
