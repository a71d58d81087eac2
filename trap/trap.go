package trap

/**
 * Separate package exists mainly in order to avoid cyclic imports:
 * csr, mmu and system all need the cause space.
 */

// Exception is the payload of the non-local trap abort. It is raised with
// panic() at the faulting site, after the trap-value CSRs for the chosen
// delegation target have been written, and recovered only by the
// instruction-dispatch loop.
type Exception struct {
	Num   uint64 // cause number, InterruptBit set for interrupts
	Tval  uint64 // faulting virtual address or instruction bits
	Gtval uint64 // guest-physical trap value (already shifted right by 2)
	Msg   string
}

// InterruptBit marks a cause number as an interrupt.
const InterruptBit = uint64(1) << 63

// IntrEmpty - no pending interrupt
const IntrEmpty = ^uint64(0)

/********************************
 * exception causes:
 ********************************/

// ExIAM - instruction address misaligned
const ExIAM = 0

// ExIAF - instruction access fault
const ExIAF = 1

// ExII - illegal instruction
const ExII = 2

// ExBP - breakpoint
const ExBP = 3

// ExLAM - load address misaligned
const ExLAM = 4

// ExLAF - load access fault
const ExLAF = 5

// ExSAM - store/AMO address misaligned
const ExSAM = 6

// ExSAF - store/AMO access fault
const ExSAF = 7

// ExECU - environment call from U-mode
const ExECU = 8

// ExECS - environment call from S-mode
const ExECS = 9

// ExECVS - environment call from VS-mode
const ExECVS = 10

// ExECM - environment call from M-mode
const ExECM = 11

// ExIPF - instruction page fault
const ExIPF = 12

// ExLPF - load page fault
const ExLPF = 13

// ExSPF - store/AMO page fault
const ExSPF = 15

// ExIGPF - instruction guest-page fault
const ExIGPF = 20

// ExLGPF - load guest-page fault
const ExLGPF = 21

// ExVI - virtual instruction
const ExVI = 22

// ExSGPF - store/AMO guest-page fault
const ExSGPF = 23

/********************************
 * interrupt lines (mip/mie bit numbers):
 ********************************/

// IrqUSIP - user software interrupt
const IrqUSIP = 0

// IrqSSIP - supervisor software interrupt
const IrqSSIP = 1

// IrqVSSIP - virtual supervisor software interrupt
const IrqVSSIP = 2

// IrqMSIP - machine software interrupt
const IrqMSIP = 3

// IrqUTIP - user timer interrupt
const IrqUTIP = 4

// IrqSTIP - supervisor timer interrupt
const IrqSTIP = 5

// IrqVSTIP - virtual supervisor timer interrupt
const IrqVSTIP = 6

// IrqMTIP - machine timer interrupt
const IrqMTIP = 7

// IrqUEIP - user external interrupt
const IrqUEIP = 8

// IrqSEIP - supervisor external interrupt
const IrqSEIP = 9

// IrqVSEIP - virtual supervisor external interrupt
const IrqVSEIP = 10

// IrqMEIP - machine external interrupt
const IrqMEIP = 11

// IrqSGEI - supervisor guest external interrupt
const IrqSGEI = 12

// IrqLCOFI - local counter overflow interrupt
const IrqLCOFI = 13
