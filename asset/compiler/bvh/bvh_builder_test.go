package bvh

import (
	"math"
	"testing"

	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/types"
)

type testVolume struct {
	bbox types.BBox
}

func (v testVolume) BBox() types.BBox {
	return v.bbox
}

func (v testVolume) Center() types.Vec3 {
	return v.bbox.Center()
}

func testVolumes() []BoundedVolume {
	type primSpec struct {
		min types.Vec3
		max types.Vec3
	}

	primSpecs := []primSpec{
		{types.Vec3{-2, 0, -2}, types.Vec3{-1, 1, -1}},
		{types.Vec3{1, 0, -2}, types.Vec3{2, 1, -1}},
		{types.Vec3{-2, 0, 1}, types.Vec3{-1, 1, 2}},
		{types.Vec3{1, 0, 1}, types.Vec3{2, 1, 2}},
	}

	itemList := make([]BoundedVolume, len(primSpecs))
	for idx, ps := range primSpecs {
		itemList[idx] = testVolume{bbox: types.BBox{ps.min, ps.max}}
	}
	return itemList
}

func TestLeafCallback(t *testing.T) {
	itemList := testVolumes()

	var cbCount = 0
	var expItemListCount = 0
	cb := func(leaf *scene.BvhNode, itemList []BoundedVolume) {
		cbCount++
		if len(itemList) != expItemListCount {
			t.Fatalf("expected leaf callback to be called with %d items; got %d", expItemListCount, len(itemList))
		}
	}

	var expCount = 0

	// Partition each item in a single leaf
	cbCount = 0
	expItemListCount = 1
	treeNodes := Build(itemList, 1, cb, SurfaceAreaHeuristic)

	expCount = 4
	if cbCount != expCount {
		t.Fatalf("expected leaf callback to be called %d times; called %d", expCount, cbCount)
	}
	expCount = 7
	if len(treeNodes) != expCount {
		t.Fatalf("expected bvh tree to have %d nodes; got %d", expCount, len(treeNodes))
	}

	// Partition two items in a single leaf
	cbCount = 0
	expItemListCount = 2
	treeNodes = Build(itemList, 2, cb, SurfaceAreaHeuristic)

	expCount = 2
	if cbCount != expCount {
		t.Fatalf("expected leaf callback to be called %d times; called %d", expCount, cbCount)
	}
	expCount = 3
	if len(treeNodes) != expCount {
		t.Fatalf("expected bvh tree to have %d nodes; got %d", expCount, len(treeNodes))
	}
}

func TestRootBBoxEnclosesAllItems(t *testing.T) {
	treeNodes := Build(testVolumes(), 1, func(*scene.BvhNode, []BoundedVolume) {}, SurfaceAreaHeuristic)

	root := treeNodes[0]
	if root.IsLeaf() {
		t.Fatal("expected root node to be an inner node")
	}
	if root.Min != (types.Vec3{-2, 0, -2}) || root.Max != (types.Vec3{2, 1, 2}) {
		t.Fatalf("unexpected root bbox %v - %v", root.Min, root.Max)
	}
	for _, child := range []int32{root.LData, root.RData} {
		if child <= 0 || int(child) >= len(treeNodes) {
			t.Fatalf("expected root child index in (0, %d); got %d", len(treeNodes), child)
		}
	}
}

func TestSurfaceAreaHeuristic(t *testing.T) {
	items := testVolumes()

	if score := SurfaceAreaHeuristic.ScorePartition(nil); score != math.MaxFloat32 {
		t.Fatalf("expected empty partition to get the worst score; got %f", score)
	}

	// All items on one side
	if _, _, score := SurfaceAreaHeuristic.ScoreSplit(items, XAxis, 10); score != math.MaxFloat32 {
		t.Fatalf("expected split with an empty side to get the worst score; got %f", score)
	}

	lCount, rCount, score := SurfaceAreaHeuristic.ScoreSplit(items, XAxis, 0)
	if lCount != 2 || rCount != 2 {
		t.Fatalf("expected 2/2 split; got %d/%d", lCount, rCount)
	}

	// Each side spans 1x1x4
	var expScore float32 = 2*(1*1+1*4+1*4) + 2*(1*1+1*4+1*4)
	if score != expScore {
		t.Fatalf("expected split score %f; got %f", expScore, score)
	}

	if partScore := SurfaceAreaHeuristic.ScorePartition(items); partScore <= score {
		t.Fatalf("expected the unsplit partition score (%f) to be worse than the split score (%f)", partScore, score)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	noop := func(*scene.BvhNode, []BoundedVolume) {}

	exp := Build(testVolumes(), 1, noop, SurfaceAreaHeuristic)
	for i := 0; i < 10; i++ {
		got := Build(testVolumes(), 1, noop, SurfaceAreaHeuristic)
		if len(got) != len(exp) {
			t.Fatalf("[run %d] expected %d nodes; got %d", i, len(exp), len(got))
		}
		for ni := range exp {
			if got[ni] != exp[ni] {
				t.Fatalf("[run %d] node %d differs: expected %v; got %v", i, ni, exp[ni], got[ni])
			}
		}
	}
}

func TestBuildFarFromOrigin(t *testing.T) {
	// Candidate planes must not stall when the step is below float32
	// precision at the node's coordinates.
	var items []BoundedVolume
	for i := 0; i < 16; i++ {
		lo := types.Vec3{5000 + float32(i)*0.01, 5000, 5000}
		items = append(items, testVolume{bbox: types.BBox{lo, lo.Add(types.Vec3{0.005, 0.005, 0.005})}})
	}

	var leafItems int
	nodes := Build(items, 2, func(_ *scene.BvhNode, list []BoundedVolume) {
		leafItems += len(list)
	}, SurfaceAreaHeuristic)

	if leafItems != len(items) {
		t.Fatalf("expected leafs to cover %d items; got %d", len(items), leafItems)
	}
	if len(nodes) == 0 {
		t.Fatal("expected a non-empty tree")
	}
}

func TestSplitInPlace(t *testing.T) {
	items := testVolumes()

	mid := splitInPlace(items, XAxis, 0)
	if mid != 2 {
		t.Fatalf("expected 2 items below the plane; got %d", mid)
	}
	for i, item := range items {
		if below := item.Center()[XAxis] < 0; below != (i < mid) {
			t.Fatalf("item %d with center %v is on the wrong side", i, item.Center())
		}
	}
}
