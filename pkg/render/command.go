package render

import "fmt"

// CommandKind identifies a boundary method of the command channel.
type CommandKind uint8

const (
	CommandCreateNode CommandKind = iota + 1
	CommandUpdateNode
	CommandDeleteNode
	CommandUpdateLayout
	CommandUpdateEventListener
	CommandMeasure
	CommandCallUIFunction
	CommandStartBatch
	CommandEndBatch

	commandKindCount
)

var commandNames = [commandKindCount]string{
	CommandCreateNode:          "createNode",
	CommandUpdateNode:          "updateNode",
	CommandDeleteNode:          "deleteNode",
	CommandUpdateLayout:        "updateLayout",
	CommandUpdateEventListener: "updateEventListener",
	CommandMeasure:             "measure",
	CommandCallUIFunction:      "callUIFunction",
	CommandStartBatch:          "startBatch",
	CommandEndBatch:            "endBatch",
}

// String returns the boundary method name, e.g. "createNode".
func (k CommandKind) String() string {
	if k.Valid() {
		return commandNames[k]
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

// Valid reports whether k names a known command.
func (k CommandKind) Valid() bool {
	return k > 0 && k < commandKindCount
}

// ParseCommandKind returns the kind for a boundary method name.
func ParseCommandKind(name string) (CommandKind, bool) {
	for k := CommandCreateNode; k < commandKindCount; k++ {
		if commandNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// CommandKinds returns every known kind in wire order.
func CommandKinds() []CommandKind {
	kinds := make([]CommandKind, 0, commandKindCount-1)
	for k := CommandCreateNode; k < commandKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// carriesPayload reports whether the kind's arguments arrive as an encoded
// region.
func (k CommandKind) carriesPayload() bool {
	switch k {
	case CommandCreateNode, CommandUpdateNode, CommandUpdateLayout,
		CommandUpdateEventListener, CommandCallUIFunction:
		return true
	}
	return false
}

// mutatesTree reports whether the kind changes the node tree and so counts
// toward the open batch.
func (k CommandKind) mutatesTree() bool {
	switch k {
	case CommandCreateNode, CommandUpdateNode, CommandDeleteNode,
		CommandUpdateLayout, CommandUpdateEventListener:
		return true
	}
	return false
}

// Command is one call on the command channel in transport-neutral form.
// Only the fields relevant to Kind are set.
type Command struct {
	Kind CommandKind

	// NodeID targets measure and callUIFunction.
	NodeID int32
	// FunctionName and CallbackID qualify callUIFunction.
	FunctionName string
	CallbackID   string

	// Payload[Offset:Offset+Length] is the encoded argument list.
	Payload []byte
	Offset  int
	Length  int

	// IDs lists the nodes removed by deleteNode.
	IDs []int32

	// Width, Height and their modes constrain measure.
	Width      float32
	WidthMode  MeasureMode
	Height     float32
	HeightMode MeasureMode
}

// PayloadCommand builds a command whose argument region spans all of payload.
func PayloadCommand(kind CommandKind, payload []byte) Command {
	return Command{Kind: kind, Payload: payload, Length: len(payload)}
}

func (c *Command) region() []byte {
	return c.Payload[c.Offset : c.Offset+c.Length]
}
