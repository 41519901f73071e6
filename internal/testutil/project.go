package testutil

import (
	"fmt"

	"github.com/specialistvlad/gridnav/internal/tensor"
)

// IdentityRunner declares a runner tool for format that echoes its inputs
// back as outputs.
func IdentityRunner(format string) string {
	return fmt.Sprintf(`
		tool "identity_%[1]s" {
			kind    = "runner"
			format  = %[1]q
			command = ["cp", "{{ .Samples }}", "{{ .Output }}"]
		}
	`, format)
}

// CopyConverter declares a convert tool for format that copies its input
// artifact.
func CopyConverter(format string) string {
	return fmt.Sprintf(`
		tool "copy_%[1]s" {
			kind    = "convert"
			format  = %[1]q
			command = ["cp", "-r", "{{ .Input }}", "{{ .Output }}"]
		}
	`, format)
}

// FastProfile is a profile block that measures each batch size once.
const FastProfile = `
	profile {
		window_size           = 1
		min_trials            = 1
		max_trials            = 2
		stabilization_windows = 1
		stability_percentage  = 1000
	}
`

// Sample returns a single-input sample "x" of shape (n, 3).
func Sample(n int) tensor.Sample {
	x := tensor.Zeros(tensor.Float32, tensor.Shape{n, 3})
	for i := range x.Data {
		x.Data[i] = float64(i) / 4
	}
	return tensor.MapSample(tensor.NamedTensor{Name: "x", Tensor: x})
}
