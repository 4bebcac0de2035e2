package tree

// InputShape carries the dimensions WorkspaceSize needs; computing it ahead
// of Train lets a caller (such as arena.Pool) size a reusable buffer once
// per forest rather than once per tree.
type InputShape struct {
	NSampledRows  int
	NSampledCols  int
	MaxBinsPerCol int
	NClasses      int
}

// Size is the result of WorkspaceSize: the capacities a *Workspace needs to
// carry one tree build through to completion without reallocating.
type Size struct {
	MaxNodes  int
	NHistBins int
}

// WorkspaceSize computes how large a Workspace must be for a build with the
// given configuration and input shape. It is a pure function of params and
// shape so an allocator can size its pool before any Input exists.
func WorkspaceSize(params Params, shape InputShape) (Size, error) {
	if err := params.Validate(); err != nil {
		return Size{}, err
	}

	maxNodes := maxNodesForDepth(params.MaxDepth)

	if params.MaxLeaves > 0 {
		if leafBound := 2 * params.MaxLeaves; leafBound < maxNodes {
			maxNodes = leafBound
		}
	}
	if shape.NSampledRows > 0 {
		if rowBound := 2*shape.NSampledRows - 1; rowBound < maxNodes {
			maxNodes = rowBound
		}
	}
	if maxNodes < 2 {
		maxNodes = 2
	}

	return Size{
		MaxNodes:  maxNodes,
		NHistBins: shape.MaxBinsPerCol,
	}, nil
}

// maxNodesForDepth is the closed-form worst-case node count of a binary
// tree bounded by depth: 2^(max_depth+1)-1 complete nodes. A negative
// max_depth (this package's "unbounded" sentinel) and any max_depth >= 13
// are both capped at 8191, the count for depth 12; callers that actually
// grow past that depth rely on Workspace's backing slices reallocating via
// append rather than on this function reserving enough nodes up front.
func maxNodesForDepth(maxDepth int) int {
	if maxDepth < 0 || maxDepth >= 13 {
		return 8191
	}
	return 1<<uint(maxDepth+1) - 1
}

// Workspace is the reused, pre-sized node arena a Builder works from for the
// whole of one Train call; Nodes and Splits (one best-split holder per node)
// are append-only across the build. Appending past the initial capacity
// grows them through append. The per-batch histograms are not part of the
// Workspace: search.go allocates them fresh for every frontier batch, since
// their shape depends on the columns in play, not on MaxNodes.
type Workspace struct {
	Nodes  []Node
	Splits []*bestSplit

	nextID int64 // monotonic Node.UniqueID counter, reset per build
}

// NewWorkspace allocates a Workspace sized per size. arena.Pool wraps this
// constructor to make Workspaces reusable across tree builds in a forest
// fit instead of allocated fresh per tree.
func NewWorkspace(size Size) *Workspace {
	return &Workspace{
		Nodes:  make([]Node, 0, size.MaxNodes),
		Splits: make([]*bestSplit, 0, size.MaxNodes),
	}
}

// reset returns the workspace to empty, ready for the next tree build,
// without shrinking its backing arrays.
func (ws *Workspace) reset() {
	ws.Nodes = ws.Nodes[:0]
	ws.Splits = ws.Splits[:0]
	ws.nextID = 0
}

// appendNodes grows the workspace by n fresh node slots (and matching
// best-split holders), returning the slot indices assigned. Each new node
// gets the next UniqueID off ws.nextID, so IDs are assigned in creation
// order and are stable across a build regardless of which frontier batch
// or goroutine later reads the node.
func (ws *Workspace) appendNodes(n int) []int {
	start := len(ws.Nodes)
	for i := 0; i < n; i++ {
		ws.Nodes = append(ws.Nodes, Node{UniqueID: ws.nextID})
		ws.Splits = append(ws.Splits, newBestSplit())
		ws.nextID++
	}
	slots := make([]int, n)
	for i := range slots {
		slots[i] = start + i
	}
	return slots
}
