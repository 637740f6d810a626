package bvh

import (
	"math"
	"sync"
	"time"

	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

// Axis selects the orientation of a split plane.
type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

const (
	// Nodes thinner than this along an axis are never split along it.
	minSideLength float32 = 1e-3

	// The number of candidate planes tested along an axis at the root. Deeper
	// nodes test 1/(depth+1) as many.
	rootSplitCandidates = 1024

	// Axes whose candidate planes would be closer than this are skipped.
	minSplitStep float32 = 1e-5
)

// SurfaceAreaHeuristic scores splits by item count times bbox surface area.
var SurfaceAreaHeuristic = surfaceAreaHeuristic{}

// BoundedVolume is implemented by the items stored in the tree. The scene
// compiler wraps each triangle in one.
type BoundedVolume interface {
	BBox() types.BBox
	Center() types.Vec3
}

// LeafCallback fills in a new leaf with the items it covers.
type LeafCallback func(leaf *scene.BvhNode, items []BoundedVolume)

// ScoreStrategy rates candidate splits. Lower scores are better.
type ScoreStrategy interface {
	// Score a split of items by the plane at splitPoint along axis.
	ScoreSplit(items []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32)

	// Score items if they were kept in a single node.
	ScorePartition(items []BoundedVolume) (score float32)
}

// The best plane found along a single axis.
type axisSplit struct {
	axis  Axis
	point float32
	score float32
	found bool
}

type builder struct {
	logger log.Logger

	nodes        []scene.BvhNode
	leafCb       LeafCallback
	minLeafItems int
	scorer       ScoreStrategy

	maxDepth   int
	innerNodes int
	leafNodes  int
}

// Build a BVH over items and return its nodes in depth-first order with the
// root at index 0. Lists of at most minLeafItems items always become a leaf;
// larger lists are split when scorer finds a plane that beats keeping them
// together. Items are reordered in place.
func Build(items []BoundedVolume, minLeafItems int, leafCb LeafCallback, scorer ScoreStrategy) []scene.BvhNode {
	b := &builder{
		logger:       log.New("bvh"),
		leafCb:       leafCb,
		minLeafItems: minLeafItems,
		scorer:       scorer,
	}

	start := time.Now()
	b.partition(items, 0)
	b.logger.Debugf(
		"built BVH over %d item(s) in %d ms (depth %d, %d inner node(s), %d leaf(s))",
		len(items), time.Since(start).Nanoseconds()/1e6,
		b.maxDepth, b.innerNodes, b.leafNodes,
	)
	return b.nodes
}

// Partition items and return the index of the node that covers them.
func (b *builder) partition(items []BoundedVolume, depth int) uint32 {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}

	bounds := types.EmptyBBox()
	for _, item := range items {
		bounds = bounds.Union(item.BBox())
	}
	node := scene.BvhNode{}
	node.SetBBox(bounds)

	if len(items) <= b.minLeafItems {
		return b.leaf(&node, items)
	}

	split := b.bestSplit(items, bounds, depth)
	if !split.found {
		return b.leaf(&node, items)
	}

	mid := splitInPlace(items, split.axis, split.point)
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.innerNodes++

	left := b.partition(items[:mid], depth+1)
	right := b.partition(items[mid:], depth+1)
	b.nodes[nodeIndex].SetChildNodes(left, right)
	return uint32(nodeIndex)
}

// Find the plane with the lowest score. Each axis is scanned in its own
// goroutine; ties go to the lower axis and the lower plane.
func (b *builder) bestSplit(items []BoundedVolume, bounds types.BBox, depth int) axisSplit {
	side := bounds.Size()
	candidates := int(math.Ceil(rootSplitCandidates / float64(depth+1)))

	var (
		wg      sync.WaitGroup
		perAxis [3]axisSplit
	)
	for axis := XAxis; axis <= ZAxis; axis++ {
		step := side[axis] / float32(candidates)
		if side[axis] < minSideLength || step < minSplitStep {
			continue
		}

		wg.Add(1)
		go func(axis Axis, step float32) {
			defer wg.Done()
			best := &perAxis[axis]
			for i := 0; i < candidates; i++ {
				point := bounds[0][axis] + float32(i)*step
				if _, _, score := b.scorer.ScoreSplit(items, axis, point); !best.found || score < best.score {
					*best = axisSplit{axis: axis, point: point, score: score, found: true}
				}
			}
		}(axis, step)
	}
	wg.Wait()

	// A split must improve on keeping the items together.
	best := axisSplit{score: b.scorer.ScorePartition(items)}
	for _, s := range perAxis {
		if s.found && s.score < best.score {
			best = s
		}
	}
	return best
}

// Move the items whose center lies below point along axis to the front and
// return how many there are.
func splitInPlace(items []BoundedVolume, axis Axis, point float32) int {
	mid := 0
	for i := range items {
		if items[i].Center()[axis] < point {
			items[i], items[mid] = items[mid], items[i]
			mid++
		}
	}
	return mid
}

func (b *builder) leaf(node *scene.BvhNode, items []BoundedVolume) uint32 {
	b.leafCb(node, items)

	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, *node)
	b.leafNodes++
	return uint32(nodeIndex)
}

type surfaceAreaHeuristic struct{}

// ScoreSplit returns leftCount*area(left) + rightCount*area(right). Splits
// that leave one side empty get math.MaxFloat32.
func (surfaceAreaHeuristic) ScoreSplit(items []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	left, right := types.EmptyBBox(), types.EmptyBBox()
	for _, item := range items {
		if item.Center()[axis] < splitPoint {
			leftCount++
			left = left.Union(item.BBox())
		} else {
			rightCount++
			right = right.Union(item.BBox())
		}
	}

	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math.MaxFloat32
	}
	return leftCount, rightCount, float32(leftCount)*halfArea(left) + float32(rightCount)*halfArea(right)
}

// ScorePartition returns count*area for the items' combined bbox, or
// math.MaxFloat32 for an empty list.
func (surfaceAreaHeuristic) ScorePartition(items []BoundedVolume) float32 {
	if len(items) == 0 {
		return math.MaxFloat32
	}

	bounds := types.EmptyBBox()
	for _, item := range items {
		bounds = bounds.Union(item.BBox())
	}
	return float32(len(items)) * halfArea(bounds)
}

func halfArea(bounds types.BBox) float32 {
	side := bounds.Size()
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}
