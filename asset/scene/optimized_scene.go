package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/types"
	"github.com/olekukonko/tablewriter"
)

// Bvh nodes are comprised of two Vec3 and two multipurpose int32 parameters
// whose value depends on the node type:
//
//   - For non-leaf nodes they are both >0 and point to the L/R child nodes
//   - For leafs, left W is <= 0 and points to the first triangle index while
//     right W is >0 and contains the count of leaf triangles
type BvhNode struct {
	Min   types.Vec3
	LData int32

	Max   types.Vec3
	RData int32
}

// Set bounding box.
func (n *BvhNode) SetBBox(bbox types.BBox) {
	n.Min = bbox[0]
	n.Max = bbox[1]
}

// Set left and right child node indices.
func (n *BvhNode) SetChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Set primitive index and count.
func (n *BvhNode) SetPrimitives(firstPrimIndex, count uint32) {
	n.LData = -int32(firstPrimIndex)
	n.RData = int32(count)
}

// Get primitive index and count.
func (n *BvhNode) GetPrimitives() (firstPrimIndex, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// Returns true if this node is a leaf.
func (n *BvhNode) IsLeaf() bool {
	return n.LData <= 0
}

// OptimizedScene is a flattened, render-ready representation of the linked
// scene contents.
type OptimizedScene struct {
	BvhNodeList []BvhNode

	// Triangles are ordered so that each BVH leaf references a contiguous range.
	Triangles     []Triangle
	MaterialIndex []uint32
	Materials     []*material.Material

	// Indices of triangles that use an emissive material.
	EmissiveIndices []uint32

	Background types.Vec3
	Camera     *Camera
}

// Returns true if the scene contains no geometry.
func (sc *OptimizedScene) IsEmpty() bool {
	return len(sc.Triangles) == 0
}

// Build a tabular representation of scene statistics.
func (sc *OptimizedScene) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Size"})
	table.Append([]string{"Geometry", "---", fmtSize(sc.Triangles, sc.BvhNodeList)})
	table.Append([]string{"", fmt.Sprintf("Triangles (%d)", len(sc.Triangles)), fmtSize(sc.Triangles)})
	table.Append([]string{"", fmt.Sprintf("BVH (%d)", len(sc.BvhNodeList)), fmtSize(sc.BvhNodeList)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Materials", "---", fmtSize(sc.MaterialIndex, sc.EmissiveIndices)})
	table.Append([]string{"", "Mat. indices", fmtSize(sc.MaterialIndex)})
	table.Append([]string{"", "Emissives", fmtSize(sc.EmissiveIndices)})
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(sc.Triangles, sc.BvhNodeList, sc.MaterialIndex, sc.EmissiveIndices), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
