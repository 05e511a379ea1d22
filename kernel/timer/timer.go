// Package timer programs the two timer sources the kernel brings up at
// init (PIT channel 0 as a reference frequency, the LAPIC timer as the
// actual tick source) and exposes the monotonic tick counter that drives
// scheduling and sleep (spec §4.5).
package timer

import (
	"sync/atomic"

	"kaviz/kernel/cpu"
	"kaviz/kernel/irq"
	"kaviz/kernel/irq/apic"
)

// TimerFrequency is the number of ticks per second the kernel is
// calibrated for. One tick is the scheduling unit every other part of the
// kernel (sleep, quantum) is expressed in.
const TimerFrequency = 100

// quantumTicks is how many ticks a task runs before schedule() reconsiders
// who should be running (spec §4.5, "every 5 ticks").
const quantumTicks = 5

const (
	pitChannel0   = 0x40
	pitCommand    = 0x43
	pitFrequency  = 1193182
	pitMode3Bin   = 0x36 // channel 0, lobyte/hibyte, mode 3, binary

	// lapicCalibratedCount is the LAPIC timer's initial count under
	// divide-by-16. It is not derived from a real calibration loop against
	// the PIT (that requires reading the PIT's down-counter mid-flight,
	// out of scope for this kernel); it is a fixed value tuned for a
	// typical QEMU/TCG host to land close to TimerFrequency.
	lapicCalibratedCount = 1_000_000
)

var (
	ticks uint64

	// onQuantum is called every quantumTicks ticks; kernel/sched installs
	// its schedule() here during its own Init.
	onQuantum func(*irq.Frame, *irq.Regs)
)

// Init programs PIT channel 0 in mode 3 at TimerFrequency, arms the LAPIC
// timer in periodic mode at vector IRQTimer, and registers the tick ISR.
// It must run after irq.Init so the IDT/APIC are already in place.
func Init() {
	programPIT()
	irq.HandleIRQ(irq.IRQTimer, onTimerTick)
	apic.ProgramTimer(uint8(32+irq.IRQTimer), lapicCalibratedCount)
}

// programPIT sets channel 0 to mode 3 (square wave) with the divisor spec
// §4.5 specifies: ⌊1193182 / TimerFrequency⌋.
func programPIT() {
	divisor := uint16(pitFrequency / TimerFrequency)
	cpu.Outb(pitCommand, pitMode3Bin)
	cpu.Outb(pitChannel0, uint8(divisor))
	cpu.Outb(pitChannel0, uint8(divisor>>8))
}

// OnQuantum installs the function invoked every quantumTicks ticks. It is
// intended to be called exactly once, by kernel/sched.Init.
func OnQuantum(fn func(*irq.Frame, *irq.Regs)) {
	onQuantum = fn
}

// onTimerTick is the registered IRQTimer handler: it advances the
// monotonic tick counter and, every quantumTicks ticks, lets the scheduler
// reconsider who should run.
func onTimerTick(frame *irq.Frame, regs *irq.Regs) {
	n := atomic.AddUint64(&ticks, 1)
	if onQuantum != nil && n%quantumTicks == 0 {
		onQuantum(frame, regs)
	}
}

// Ticks returns the current value of the monotonic tick counter.
func Ticks() uint64 {
	return atomic.LoadUint64(&ticks)
}

// SleepMS busy-waits (hlt-ing between checks) until at least ms
// milliseconds have elapsed, expressed purely in terms of the tick
// counter. It must not be called from interrupt context. This is the
// target's resolution of §9's "sleep_ms vs sleep_ticks" open question:
// both live in ticks, SleepMS is a thin unit conversion over Ticks.
func SleepMS(ms uint64) {
	target := Ticks() + (ms*TimerFrequency)/1000
	for Ticks() < target {
		cpu.Halt()
	}
}
