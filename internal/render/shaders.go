package render

import "fmt"

// MaxFeedbackPrimitives is the number of distinct primitives the
// transform-feedback capture program can describe at once.
const MaxFeedbackPrimitives = 64

// Vertex inputs and outputs shared by the instanced programs.
const instancedPrelude = `
#version 410 core
layout (location = 0) in vec3 aPosition;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec4 aColor;
layout (location = 3) in uint aInstance;

uniform mat4 uView;
uniform mat4 uProjection;
uniform vec4 uBaseColor;
uniform int uUseVertexColor;
uniform int uInstanceOffset;

out vec4 vColor;
out vec3 vNormal;
`

// The instanced main, applied after instanceMatrix is defined.
const instancedMain = `
void main() {
    mat4 model = instanceMatrix(aInstance);
    vec4 world = model * vec4(aPosition, 1.0);
    gl_Position = uProjection * uView * world;
    vNormal = mat3(model) * aNormal;
    vColor = uUseVertexColor != 0 ? aColor * uBaseColor : uBaseColor;
}
`

// Data-texture lookup. Each world matrix is three consecutive texels holding
// the top three rows; the bottom row is implied.
const dataTextureVertexSource = instancedPrelude + `
uniform sampler2D uInstances;
uniform int uTextureWidth;

mat4 instanceMatrix(uint sid) {
    int base = uInstanceOffset + int(sid) * 3;
    vec4 rows[3];
    for (int r = 0; r < 3; r++) {
        int idx = base + r;
        rows[r] = texelFetch(uInstances, ivec2(idx % uTextureWidth, idx / uTextureWidth), 0);
    }
    return transpose(mat4(rows[0], rows[1], rows[2], vec4(0.0, 0.0, 0.0, 1.0)));
}
` + instancedMain

// uniformBufferVertexSource indexes the instance region bound as a uniform
// block of the given number of vec4 rows.
func uniformBufferVertexSource(rows int) string {
	return instancedPrelude + fmt.Sprintf(`
layout (std140) uniform Instances {
    vec4 uInstanceRows[%d];
};

mat4 instanceMatrix(uint sid) {
    int base = uInstanceOffset + int(sid) * 3;
    return transpose(mat4(uInstanceRows[base], uInstanceRows[base + 1], uInstanceRows[base + 2],
                          vec4(0.0, 0.0, 0.0, 1.0)));
}
`, rows) + instancedMain
}

// Lambert shading against a fixed light; geometry without normals is unlit.
const fragmentShaderSource = `
#version 410 core
in vec4 vColor;
in vec3 vNormal;
out vec4 FragColor;

const vec3 lightDir = normalize(vec3(0.4, 0.8, 0.6));

void main() {
    float lit = 1.0;
    if (dot(vNormal, vNormal) > 0.0) {
        lit = 0.35 + 0.65 * max(dot(normalize(vNormal), lightDir), 0.0);
    }
    FragColor = vec4(vColor.rgb * lit, vColor.a);
}
`

// The capture program has no vertex inputs. Output vertex gl_VertexID is
// resolved to (instance, primitive, local vertex) by scanning the cumulative
// table, then position and normal are fetched from the vertex arena texture
// and transformed by the instance's world matrix from the instance texture.
var feedbackCaptureVertexSource = fmt.Sprintf(`
#version 410 core
#define TABLE(t, k) t[(k) >> 2][(k) & 3]

uniform sampler2D uInstances;
uniform int uTextureWidth;
uniform int uInstanceOffset;
uniform sampler2D uVertices;
uniform int uVertexWidth;
uniform int uSegments;

layout (std140) uniform FeedbackCumulative { ivec4 uCumulative[%[1]d]; };
layout (std140) uniform FeedbackEntities { ivec4 uEntities[%[1]d]; };
layout (std140) uniform FeedbackPrimitives { ivec4 uPrimitives[%[1]d]; };

layout (std140) uniform FeedbackLayouts {
    // x: position float offset, y: position float stride,
    // z: normal float offset (-1 if absent), w: normal float stride.
    ivec4 uPrimitiveLayout[%[2]d];
    // x: index offset in elements (-1 if absent), y: 1 for 16-bit indices.
    ivec4 uPrimitiveIndex[%[2]d];
    vec4 uPrimitiveColor[%[2]d];
};

out vec4 tfPosition;
out vec4 tfNormal;
out vec4 tfColor;

float fetchFloat(sampler2D s, int width, int i) {
    int texel = i / 4;
    return texelFetch(s, ivec2(texel %% width, texel / width), 0)[i & 3];
}

mat4 instanceMatrix(int sid) {
    int base = uInstanceOffset + sid * 3;
    vec4 rows[3];
    for (int r = 0; r < 3; r++) {
        int idx = base + r;
        rows[r] = texelFetch(uInstances, ivec2(idx %% uTextureWidth, idx / uTextureWidth), 0);
    }
    return transpose(mat4(rows[0], rows[1], rows[2], vec4(0.0, 0.0, 0.0, 1.0)));
}

void main() {
    int v = gl_VertexID;
    int subtract = 0;
    int k = 0;
    for (; k < uSegments - 1; k++) {
        int cum = TABLE(uCumulative, k);
        if (v < cum) {
            break;
        }
        subtract = cum;
    }
    int local = v - subtract;
    int sid = TABLE(uEntities, k);
    int prim = TABLE(uPrimitives, k);

    ivec4 primLayout = uPrimitiveLayout[prim];
    ivec4 index = uPrimitiveIndex[prim];
    int vertex = local;
    if (index.x >= 0) {
        if (index.y != 0) {
            int halfIndex = index.x + local;
            uint bits = floatBitsToUint(fetchFloat(uVertices, uVertexWidth, halfIndex / 2));
            vertex = int((bits >> uint((halfIndex & 1) * 16)) & 0xFFFFu);
        } else {
            vertex = floatBitsToInt(fetchFloat(uVertices, uVertexWidth, index.x + local));
        }
    }

    int p = primLayout.x + vertex * primLayout.y;
    vec3 position = vec3(fetchFloat(uVertices, uVertexWidth, p),
                         fetchFloat(uVertices, uVertexWidth, p + 1),
                         fetchFloat(uVertices, uVertexWidth, p + 2));
    vec3 normal = vec3(0.0);
    if (primLayout.z >= 0) {
        int n = primLayout.z + vertex * primLayout.w;
        normal = vec3(fetchFloat(uVertices, uVertexWidth, n),
                      fetchFloat(uVertices, uVertexWidth, n + 1),
                      fetchFloat(uVertices, uVertexWidth, n + 2));
    }

    mat4 model = instanceMatrix(sid);
    tfPosition = model * vec4(position, 1.0);
    tfNormal = vec4(mat3(model) * normal, 0.0);
    tfColor = uPrimitiveColor[prim];
    gl_Position = tfPosition;
}
`, MaxFeedbackSegments/4, MaxFeedbackPrimitives)

// The capture pass rasterises nothing but a program still needs a fragment
// stage to link.
const feedbackCaptureFragmentSource = `
#version 410 core
out vec4 FragColor;
void main() {
    FragColor = vec4(0.0);
}
`

// feedbackVaryings are captured interleaved, 48 bytes per vertex.
var feedbackVaryings = []string{"tfPosition", "tfNormal", "tfColor"}

const feedbackVertexBytes = 48

// Draws the captured world-space vertices.
const feedbackPresentVertexSource = `
#version 410 core
layout (location = 0) in vec4 aWorld;
layout (location = 1) in vec4 aNormal;
layout (location = 2) in vec4 aColor;

uniform mat4 uView;
uniform mat4 uProjection;

out vec4 vColor;
out vec3 vNormal;

void main() {
    gl_Position = uProjection * uView * aWorld;
    vNormal = aNormal.xyz;
    vColor = aColor;
}
`
