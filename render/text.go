package render

import (
	"fmt"
	"strings"
)

// shades maps normalised mass to characters, lightest first.
const shades = " .:-=+*#%@"

// Text draws the board as characters: P for the player, T for a visible
// target, otherwise a shade of the cell's mass relative to the heaviest cell.
// Cells are separated by a space and rows end with a newline.
func Text(f Frame) string {
	maxMass := f.MaxMass()
	var sb strings.Builder
	for y := 0; y < f.GridSize; y++ {
		for x := 0; x < f.GridSize; x++ {
			if x > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte(cellChar(f, x, y, maxMass))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func cellChar(f Frame, x, y int, maxMass float64) byte {
	switch {
	case f.Player.X == x && f.Player.Y == y:
		return 'P'
	case f.TargetVisible && f.Target.X == x && f.Target.Y == y:
		return 'T'
	}
	return Shade(massAt(f, x, y), maxMass)
}

// Shade returns the shade character for mass m given the heaviest cell.
func Shade(m, maxMass float64) byte {
	if maxMass <= 0 || m <= 0 {
		return shades[0]
	}
	i := int(m / maxMass * float64(len(shades)-1))
	if i < 1 {
		i = 1
	}
	if i > len(shades)-1 {
		i = len(shades) - 1
	}
	return shades[i]
}

func massAt(f Frame, x, y int) float64 {
	if y < 0 || y >= len(f.Mass) || x < 0 || x >= len(f.Mass[y]) {
		return 0
	}
	return f.Mass[y][x]
}

// Status is a one-line summary of the frame.
func Status(f Frame) string {
	return fmt.Sprintf("step %d  %s  score %d  moves %d  certainty %d%%",
		f.Step, f.Phase, f.Score, f.Moves, int(f.Certainty*100+0.5))
}
