package program

// Demo returns the image pipeline walkthrough: a load/process call chain, a
// scratch buffer that is freed, a free of a name that was never bound, and a
// leaked allocation left behind for the garbage collector.
func Demo() *Program {
	return New(
		Source{Name: "main", Lines: []string{
			"function main() {",
			"  // image processing pipeline",
			"  let image = loadImage();",
			"  processImage(image);",
			"  let cache = malloc(512);",
			"  free(ghost);",
			"  malloc(256);",
			"  free(image);",
			"  return 0;",
			"}",
		}},
		Source{Name: "loadImage", Lines: []string{
			"function loadImage() {",
			"  let pixels = malloc(2048);",
			"  return pixels;",
			"}",
		}},
		Source{Name: "processImage", Lines: []string{
			"function processImage(img) {",
			"  let temp = malloc(2048);",
			"  applyFilter(temp);",
			"  free(temp);",
			"  return;",
			"}",
		}},
		Source{Name: "applyFilter", Lines: []string{
			"function applyFilter(buf) {",
			"  /* in-place, no allocation */",
			"  return;",
			"}",
		}},
	)
}
