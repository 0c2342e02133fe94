package render

import (
	"regexp"
	"strings"
	"testing"
)

// glslReserved holds the GLSL 4.10 keywords and reserved words that can't be
// used as identifiers, less the type names a declaration can't collide with.
var glslReserved = func() map[string]bool {
	words := strings.Fields(`
		attribute const uniform varying layout centroid flat smooth noperspective
		patch sample break continue do for while switch case default if else
		subroutine in out inout true false invariant discard return struct
		precision lowp mediump highp
		common partition active asm class union enum typedef template this packed
		resource goto inline noinline volatile public static extern external
		interface long short double half fixed unsigned superp input output
		hvec2 hvec3 hvec4 fvec2 fvec3 fvec4 sampler3DRect filter image1D image2D
		image3D imageCube iimage1D iimage2D iimage3D iimageCube uimage1D uimage2D
		uimage3D uimageCube image1DArray image2DArray iimage1DArray iimage2DArray
		uimage1DArray uimage2DArray image1DShadow image2DShadow image1DArrayShadow
		image2DArrayShadow imageBuffer iimageBuffer uimageBuffer sizeof cast
		namespace using row_major coherent restrict readonly writeonly`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

var glslDeclaration = regexp.MustCompile(
	`\b(?:bool|int|uint|float|[biu]?vec[234]|mat[234](?:x[234])?|sampler2D)\s+([A-Za-z_]\w*)\s*[=;,\[\)\(]`)

// reservedIdentifiers returns every declaration in src whose name is a GLSL
// keyword or reserved word.
func reservedIdentifiers(src string) []string {
	var found []string
	for _, m := range glslDeclaration.FindAllStringSubmatch(src, -1) {
		if glslReserved[m[1]] {
			found = append(found, strings.TrimSpace(m[0]))
		}
	}
	return found
}

func TestReservedIdentifiersDetectsKeywords(t *testing.T) {
	src := `
    ivec4 layout = uPrimitiveLayout[prim];
    int half = index.x + local;
    float sample(int input) { return 0.0; }
    int ok = 1;`
	if got := reservedIdentifiers(src); len(got) != 4 {
		t.Fatalf("expected 4 reserved identifiers, got %d: %q", len(got), got)
	}
}

func TestShadersAvoidReservedIdentifiers(t *testing.T) {
	sources := map[string]string{
		"data-texture vertex":       dataTextureVertexSource,
		"uniform-buffer vertex":     uniformBufferVertexSource(16),
		"fragment":                  fragmentShaderSource,
		"feedback capture vertex":   feedbackCaptureVertexSource,
		"feedback capture fragment": feedbackCaptureFragmentSource,
		"feedback present vertex":   feedbackPresentVertexSource,
	}
	for name, src := range sources {
		if got := reservedIdentifiers(src); len(got) != 0 {
			t.Errorf("%s shader declares reserved identifiers: %q", name, got)
		}
	}
}
