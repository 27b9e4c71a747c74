package abi

// Op indices, one per registry entry (abi.go). Order is arbitrary but
// must stay parallel between this block and the ops slice below; both
// are assembled in the same file for that reason.
const (
	opPrint uint32 = iota
	opPhysicalMap
	opEventCreate
	opEventWait
	opEventTrigger
	opHandleClose
	opHandleDuplicate
	opInterruptCreate
	opInterruptAck
	opObjectWaitOne
	opObjectSignal
	opProcessCreate
	opProcessStart
	opThreadYield
	opThreadSpawn
	opPfexAcquire
	opPfexRelease
	opChannelCreate
	opChannelSend
	opChannelRecv
	opChannelFirstMsgLen
	opStreamCreate
	opStreamWrite
	opStreamRead
	opIOReadPortU8
	opIOWritePortU8
	opRandRandomFill
	opRandCprngFill
	opGrowMemory
	opCurrentMemory
)

// ops is abiDispatchTrampoline's dispatch table (entry_amd64.go), indexed
// by the op constants above. Each family's handlers live in their own
// ops_*.go file, mirroring original_source/src/abi/*.rs's layout.
var ops = []op{
	opPrint:              doPrint,
	opPhysicalMap:        doPhysicalMap,
	opEventCreate:        doEventCreate,
	opEventWait:          doEventWait,
	opEventTrigger:       doEventTrigger,
	opHandleClose:        doHandleClose,
	opHandleDuplicate:    doHandleDuplicate,
	opInterruptCreate:    doInterruptCreate,
	opInterruptAck:       doInterruptAck,
	opObjectWaitOne:      doObjectWaitOne,
	opObjectSignal:       doObjectSignal,
	opProcessCreate:      doProcessCreate,
	opProcessStart:       doProcessStart,
	opThreadYield:        doThreadYield,
	opThreadSpawn:        doThreadSpawn,
	opPfexAcquire:        doPfexAcquire,
	opPfexRelease:        doPfexRelease,
	opChannelCreate:      doChannelCreate,
	opChannelSend:        doChannelSend,
	opChannelRecv:        doChannelRecv,
	opChannelFirstMsgLen: doChannelFirstMsgLen,
	opStreamCreate:       doStreamCreate,
	opStreamWrite:        doStreamWrite,
	opStreamRead:         doStreamRead,
	opIOReadPortU8:       doIOReadPortU8,
	opIOWritePortU8:      doIOWritePortU8,
	opRandRandomFill:     doRandRandomFill,
	opRandCprngFill:      doRandCprngFill,
	opGrowMemory:         doGrowMemory,
	opCurrentMemory:      doCurrentMemory,
}
