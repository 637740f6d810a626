package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAxis  = errors.New("axis: invalid axis name")
	ErrAxisConflict = errors.New("axis: up and forward must use different axes")
)

// Axis is one of the six signed coordinate directions.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisNegX
	AxisNegY
	AxisNegZ
)

var axisNames = [...]string{"X", "Y", "Z", "-X", "-Y", "-Z"}

func (a Axis) String() string {
	if int(a) < len(axisNames) {
		return axisNames[a]
	}
	return "invalid"
}

// Parse an axis name (X, Y, Z, -X, -Y, -Z). Parsing is case-insensitive.
func ParseAxis(name string) (Axis, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for idx, axisName := range axisNames {
		if axisName == name {
			return Axis(idx), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAxis, name)
}

// AxisNames returns the list of valid axis names.
func AxisNames() []string {
	return append([]string(nil), axisNames[:]...)
}

// Vec3 returns the unit vector for this axis.
func (a Axis) Vec3() Vec3 {
	var v Vec3
	v[a%3] = 1
	if a >= AxisNegX {
		v[a%3] = -1
	}
	return v
}

// Get the unsigned component index (0, 1, 2) of the axis.
func (a Axis) component() int {
	return int(a % 3)
}

// Implement yaml/text unmarshaling so axes can be read from config files.
func (a *Axis) UnmarshalText(text []byte) error {
	parsed, err := ParseAxis(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// AxisConvention describes which source axes point up and forward. Imported
// geometry is remapped so that Up maps to +Y and Forward maps to -Z.
type AxisConvention struct {
	Up      Axis `yaml:"up"`
	Forward Axis `yaml:"forward"`
}

// The default convention (Y up, -Z forward) leaves geometry untouched.
func DefaultAxisConvention() AxisConvention {
	return AxisConvention{Up: AxisY, Forward: AxisNegZ}
}

func (c AxisConvention) String() string {
	return fmt.Sprintf("up: %s, forward: %s", c.Up, c.Forward)
}

// Validate ensures that up and forward do not share the same axis.
func (c AxisConvention) Validate() error {
	if c.Up.component() == c.Forward.component() {
		return fmt.Errorf("%w (up: %s, forward: %s)", ErrAxisConflict, c.Up, c.Forward)
	}
	return nil
}

// Matrix returns the rotation that maps the convention's basis to the
// internal one (right: +X, up: +Y, forward: -Z).
func (c AxisConvention) Matrix() (Mat3, error) {
	if err := c.Validate(); err != nil {
		return Mat3{}, err
	}

	up := c.Up.Vec3()
	fwd := c.Forward.Vec3()
	right := fwd.Cross(up)

	return Mat3FromRows(right, up, fwd.Mul(-1)), nil
}
