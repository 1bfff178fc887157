package ai

import (
	"fmt"
	"log"
	"os"
	"sync"

	tokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"gonum.org/v1/gonum/floats"
)

// TextEmbedderConfig конфигурация текстового энкодера (MiniLM)
type TextEmbedderConfig struct {
	ModelPath     string // Путь к ONNX модели (all-MiniLM-L6-v2)
	TokenizerPath string // Путь к tokenizer.json
	MaxSeqLen     int    // Максимальная длина последовательности в токенах
}

// DefaultTextEmbedderConfig возвращает конфигурацию по умолчанию
func DefaultTextEmbedderConfig(modelPath, tokenizerPath string) TextEmbedderConfig {
	return TextEmbedderConfig{
		ModelPath:     modelPath,
		TokenizerPath: tokenizerPath,
		MaxSeqLen:     256,
	}
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initONNXRuntime инициализирует ONNX Runtime (один раз на процесс)
func initONNXRuntime() error {
	ortInitOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// TextEmbedder преобразует текст в семантический вектор (embedding)
type TextEmbedder struct {
	config    TextEmbedderConfig
	tokenizer *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession

	mu          sync.Mutex
	initialized bool
}

// NewTextEmbedder создаёт новый энкодер
func NewTextEmbedder(config TextEmbedderConfig) (*TextEmbedder, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}

	tok, err := pretrained.FromFile(config.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	if err := initONNXRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Printf("[Embedder] Initialized: model=%s", config.ModelPath)

	return &TextEmbedder{
		config:      config,
		tokenizer:   tok,
		session:     session,
		initialized: true,
	}, nil
}

// Embed преобразует строку в нормализованный вектор
func (e *TextEmbedder) Embed(text string) ([]float32, error) {
	vectors, err := e.EmbedBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch преобразует пакет строк в нормализованные векторы
func (e *TextEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	// Токенизируем
	inputs := make([]tokenizer.EncodeInput, len(texts))
	for i, t := range texts {
		inputs[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(t))
	}

	encodings, err := e.tokenizer.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}

	// Максимальная длина в батче (с обрезкой до MaxSeqLen)
	maxLen := 0
	for _, enc := range encodings {
		l := len(enc.GetIds())
		if l > e.config.MaxSeqLen {
			l = e.config.MaxSeqLen
		}
		if l > maxLen {
			maxLen = l
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("empty encoding batch")
	}

	batchSize := len(encodings)
	inputIds := make([]int64, batchSize*maxLen)
	attentionMask := make([]int64, batchSize*maxLen)
	tokenTypeIds := make([]int64, batchSize*maxLen)

	for i, enc := range encodings {
		ids := enc.GetIds()
		mask := enc.GetAttentionMask()
		offset := i * maxLen
		for j := 0; j < maxLen; j++ {
			if j < len(ids) {
				inputIds[offset+j] = int64(ids[j])
				attentionMask[offset+j] = int64(mask[j])
			}
		}
	}

	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIdsTensor, err := ort.NewTensor(shape, inputIds)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIdsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIdsTensor, err := ort.NewTensor(shape, tokenTypeIds)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIdsTensor.Destroy()

	outputs := []ort.Value{nil}
	err = e.session.Run(
		[]ort.Value{inputIdsTensor, attentionMaskTensor, tokenTypeIdsTensor},
		outputs,
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output tensor is not float32")
	}

	// Выход: [batch, seq_len, hidden_dim]
	outShape := outputTensor.GetShape()
	seqLen := outShape[1]
	hiddenDim := outShape[2]
	data := outputTensor.GetData()

	// Mean pooling по attention mask + L2-нормализация
	// (так считает sentence-transformers для all-MiniLM-L6-v2)
	vectors := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		pooled := make([]float64, hiddenDim)
		var count float64

		for j := int64(0); j < seqLen; j++ {
			if attentionMask[i*maxLen+int(j)] == 0 {
				continue
			}
			base := (int64(i)*seqLen + j) * hiddenDim
			for d := int64(0); d < hiddenDim; d++ {
				pooled[d] += float64(data[base+d])
			}
			count++
		}
		if count > 0 {
			floats.Scale(1/count, pooled)
		}

		norm := floats.Norm(pooled, 2)
		if norm > 1e-10 {
			floats.Scale(1/norm, pooled)
		}

		vec := make([]float32, hiddenDim)
		for d := range pooled {
			vec[d] = float32(pooled[d])
		}
		vectors[i] = vec
	}

	return vectors, nil
}

// Close освобождает ресурсы
func (e *TextEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.initialized = false
}
