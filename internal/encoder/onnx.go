package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// ONNXEncoder runs a local sentence-embedding model (e.g. a MiniLM export)
// through onnxruntime. Vectors are mean-pooled over the attention mask and
// left unnormalized; callers normalize.
type ONNXEncoder struct {
	session   *ort.AdvancedSession
	tokenizer *WordPieceTokenizer
	seqLen    int
	dim       int

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	// The session reuses preallocated tensors, so runs are serialized.
	// Cross-request parallelism is governed by the tier-2 semaphore anyway.
	mu sync.Mutex
}

type bundleMeta struct {
	Dimension int `yaml:"dimension"`
}

// LoadONNX initializes the session and tokenizer from a bundle directory
// containing model.onnx, embedding.yaml and tokenizer assets.
func LoadONNX(bundleDir string, seqLen int) (*ONNXEncoder, error) {
	if bundleDir == "" {
		return nil, errors.New("bundleDir is empty")
	}
	if seqLen <= 0 {
		seqLen = 256
	}

	libPath := resolveSharedLibraryPath(bundleDir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(bundleDir, "model.onnx")
	metaPath := filepath.Join(bundleDir, "embedding.yaml")
	vocabPath := filepath.Join(bundleDir, "tokenizer", "vocab.txt")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	meta, err := loadBundleMeta(metaPath)
	if err != nil {
		return nil, fmt.Errorf("load embedding meta: %w", err)
	}

	tokenizer, err := LoadWordPieceTokenizer(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	outputShape := ort.NewShape(1, int64(seqLen), int64(meta.Dimension))
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXEncoder{
		session:       session,
		tokenizer:     tokenizer,
		seqLen:        seqLen,
		dim:           meta.Dimension,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

// Encode tokenizes text, runs the model, and mean-pools the hidden states.
func (e *ONNXEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.session == nil {
		return nil, errors.New("onnx encoder not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, attn := e.tokenizer.Encode(text, e.seqLen)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Deadline may have passed while queued behind another run.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), attn)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	hidden := e.output.GetData()
	vec := make([]float32, e.dim)
	var tokens float32
	for pos := 0; pos < e.seqLen; pos++ {
		if attn[pos] == 0 {
			continue
		}
		tokens++
		base := pos * e.dim
		for j := 0; j < e.dim; j++ {
			vec[j] += hidden[base+j]
		}
	}
	if tokens > 0 {
		for j := range vec {
			vec[j] /= tokens
		}
	}
	return vec, nil
}

func loadBundleMeta(path string) (bundleMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bundleMeta{}, err
	}
	var meta bundleMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return bundleMeta{}, err
	}
	if meta.Dimension <= 0 {
		return bundleMeta{}, fmt.Errorf("embedding.yaml: dimension must be positive")
	}
	return meta, nil
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared
// library. ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names and
// locations are probed.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
