package bench

import "github.com/daqlab/dmabench-go/daq"

// hammerBatch is the number of register writes issued per stop-flag
// check in the stress writer.
const hammerBatch = 10_000

// hammerLoop stresses the card's register interface with a tight loop of
// writes to the debug scratch register, counting throughput. It shares
// nothing with the transfer pipeline beyond the stop flag.
func (p *Pipeline) hammerLoop() {
	var value uint32
	for !p.stop.Load() {
		for i := 0; i < hammerBatch; i++ {
			p.ch.WriteRegister(daq.RegDebugReadWrite, value)
			value++
		}
		p.hammerWrites.Add(hammerBatch)
	}
}
