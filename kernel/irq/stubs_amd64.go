package irq

// intStubN is the interrupt entry point installed in IDT slot N. Each one
// pushes the vector number (and a dummy error code if the CPU does not push
// one itself) and jumps to the shared trampoline in commonStub.
func intStub0()
func intStub1()
func intStub2()
func intStub3()
func intStub4()
func intStub5()
func intStub6()
func intStub7()
func intStub8()
func intStub9()
func intStub10()
func intStub11()
func intStub12()
func intStub13()
func intStub14()
func intStub15()
func intStub16()
func intStub17()
func intStub18()
func intStub19()
func intStub20()
func intStub21()
func intStub22()
func intStub23()
func intStub24()
func intStub25()
func intStub26()
func intStub27()
func intStub28()
func intStub29()
func intStub30()
func intStub31()
func intStub32()
func intStub33()
func intStub34()
func intStub35()
func intStub36()
func intStub37()
func intStub38()
func intStub39()
func intStub40()
func intStub41()
func intStub42()
func intStub43()
func intStub44()
func intStub45()
func intStub46()
func intStub47()
func intStub128()
func intStub129()

// commonStub saves the general purpose registers, calls dispatch and
// restores them before IRETQ. Implemented in stubs_amd64.s.
func commonStub()
