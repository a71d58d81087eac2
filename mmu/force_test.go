package mmu

import (
	"testing"

	"rvsim/csr"
	"rvsim/mem"
	"rvsim/trap"
)

func TestForcedLoadFault(t *testing.T) {
	c, _, mm := sv39Setup(t, fV|fR|fW|fA|fD)

	// the mapping is valid; only the guide's verdict makes it fault
	mm.SetGuide(&ExecutionGuide{ForceRaiseException: true, ExceptionNum: trap.ExLPF})

	ex, raised := catchException(func() { mm.Translate(0x1000, 4, mem.TypeRead) })
	if !raised {
		t.Fatal("guided load fault not reproduced")
	}
	if ex.Num != trap.ExLPF {
		t.Errorf("cause: wanted %v, got %v", trap.ExLPF, ex.Num)
	}
	if ex.Tval != 0x1000 {
		t.Errorf("tval: wanted the local address, got %#x", ex.Tval)
	}
	if c.Mtval != 0x1000 {
		t.Errorf("mtval: wanted %#x, got %#x", uint64(0x1000), c.Mtval)
	}

	// detaching the guide restores normal translation
	mm.SetGuide(nil)
	if paddr := mm.Translate(0x1000, 4, mem.TypeRead); paddr != testBase+0x5000 {
		t.Errorf("translation after detach: wanted %#x, got %#x", uint64(testBase+0x5000), paddr)
	}
}

func TestForcedFaultSkipsFifthRepeat(t *testing.T) {
	_, _, mm := sv39Setup(t, fV|fR|fW|fA|fD)
	mm.SetGuide(&ExecutionGuide{ForceRaiseException: true, ExceptionNum: trap.ExLPF})

	// a guide stuck on one address lets exactly the fifth repeat through,
	// then resumes forcing
	for i := 0; i < 4; i++ {
		if _, raised := catchException(func() { mm.Translate(0x1000, 4, mem.TypeRead) }); !raised {
			t.Fatalf("injection %d not raised", i)
		}
	}
	paddr, raised := uint64(0), false
	_, raised = catchException(func() { paddr = mm.Translate(0x1000, 4, mem.TypeRead) })
	if raised {
		t.Fatal("forced fault raised on the fifth repeat")
	}
	if paddr != testBase+0x5000 {
		t.Errorf("translation on the skipped repeat: wanted %#x, got %#x", uint64(testBase+0x5000), paddr)
	}
	if _, raised := catchException(func() { mm.Translate(0x1000, 4, mem.TypeRead) }); !raised {
		t.Error("forcing did not resume after the skipped repeat")
	}
}

func TestForcedFaultRetryCountPerAddress(t *testing.T) {
	_, _, mm := sv39Setup(t, fV|fR|fW|fA|fD)
	mm.SetGuide(&ExecutionGuide{ForceRaiseException: true, ExceptionNum: trap.ExLPF})

	for i := 0; i < 3; i++ {
		catchException(func() { mm.Translate(0x1000, 4, mem.TypeRead) })
	}
	// a different address restarts the count
	if _, raised := catchException(func() { mm.Translate(0x1008, 4, mem.TypeRead) }); !raised {
		t.Fatal("forced fault at a fresh address not raised")
	}
	for i := 0; i < 3; i++ {
		catchException(func() { mm.Translate(0x1008, 4, mem.TypeRead) })
	}
	if _, raised := catchException(func() { mm.Translate(0x1008, 4, mem.TypeRead) }); raised {
		t.Error("fifth repeat at the restarted address not skipped")
	}
}

func TestForcedFetchFaultGuideTval(t *testing.T) {
	c, _, mm := sv39Setup(t, fV|fX|fA|fD)

	// fetch faults take the trap value from the reference model, even
	// when it disagrees with the local address
	mm.SetGuide(&ExecutionGuide{
		ForceRaiseException: true,
		ExceptionNum:        trap.ExIPF,
		Mtval:               0x2222,
	})

	ex, raised := catchException(func() { mm.Translate(0x1000, 4, mem.TypeIfetch) })
	if !raised {
		t.Fatal("guided fetch fault not reproduced")
	}
	if ex.Num != trap.ExIPF {
		t.Errorf("cause: wanted %v, got %v", trap.ExIPF, ex.Num)
	}
	if ex.Tval != 0x2222 {
		t.Errorf("tval: wanted the guide value, got %#x", ex.Tval)
	}
	if c.Mtval != 0x2222 {
		t.Errorf("mtval: wanted %#x, got %#x", uint64(0x2222), c.Mtval)
	}
}

func TestForcedFetchFaultDelegated(t *testing.T) {
	c, _, mm := sv39Setup(t, fV|fX|fA|fD)
	c.Medeleg = 1 << trap.ExIPF

	mm.SetGuide(&ExecutionGuide{
		ForceRaiseException: true,
		ExceptionNum:        trap.ExIPF,
		Stval:               0x3333,
	})

	ex, raised := catchException(func() { mm.Translate(0x1000, 4, mem.TypeIfetch) })
	if !raised {
		t.Fatal("guided fetch fault not reproduced")
	}
	if ex.Tval != 0x3333 {
		t.Errorf("tval: wanted the guide stval, got %#x", ex.Tval)
	}
	if c.Stval != 0x3333 {
		t.Errorf("stval: wanted %#x, got %#x", uint64(0x3333), c.Stval)
	}
}

func TestForcedStoreFaultIgnoresLoadGuide(t *testing.T) {
	_, _, mm := sv39Setup(t, fV|fR|fW|fA|fD)

	// a load-fault verdict does not apply to a store access
	mm.SetGuide(&ExecutionGuide{ForceRaiseException: true, ExceptionNum: trap.ExLPF})
	if _, raised := catchException(func() { mm.Translate(0x1000, 4, mem.TypeWrite) }); raised {
		t.Error("load-fault guide applied to a store")
	}
}

func TestForcedGuestFault(t *testing.T) {
	c, m, mm := testMMU(testConfig())

	gstageIdentity(c, m)
	c.V = true
	c.Mode = csr.ModeS
	mm.UpdateMMUState()

	mm.SetGuide(&ExecutionGuide{
		ForceRaiseException: true,
		ExceptionNum:        trap.ExLGPF,
		Htval:               0xabc,
		Mtval2:              0xabc,
	})

	ex, raised := catchException(func() { mm.Translate(testBase+0x1000, 4, mem.TypeRead) })
	if !raised {
		t.Fatal("guided guest fault not reproduced")
	}
	if ex.Num != trap.ExLGPF {
		t.Errorf("cause: wanted %v, got %v", trap.ExLGPF, ex.Num)
	}
	if ex.Gtval != 0xabc {
		t.Errorf("guest tval: wanted the guide value, got %#x", ex.Gtval)
	}
	if c.Htval != 0xabc || c.Mtval2 != 0xabc {
		t.Errorf("htval/mtval2: wanted %#x, got %#x/%#x", uint64(0xabc), c.Htval, c.Mtval2)
	}
}
