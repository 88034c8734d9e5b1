package pipeline

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"agentpm/internal/shared/model"
)

// renderedHeader 文档开头的元数据块
type renderedHeader struct {
	DocumentKind     model.DocumentKind `yaml:"document_kind"`
	ConversationID   string             `yaml:"conversation_id"`
	GeneratedAt      string             `yaml:"generated_at"`
	QualityScore     float64            `yaml:"quality_score"`
	ValidationPassed bool               `yaml:"validation_passed"`
	WordCount        int                `yaml:"word_count"`
	Duration         string             `yaml:"generation_duration"`
}

// Render 渲染文档：YAML 元数据块 + 正文
func Render(conversationID string, r *model.DocumentGenerationResult) ([]byte, error) {
	header := renderedHeader{
		DocumentKind:     r.Kind,
		ConversationID:   conversationID,
		GeneratedAt:      r.Metadata.GeneratedAt.UTC().Format(time.RFC3339),
		QualityScore:     r.Metadata.QualityScore,
		ValidationPassed: r.Metadata.ValidationPassed,
		WordCount:        r.Metadata.WordCount,
		Duration:         r.Metadata.Duration.Round(time.Millisecond).String(),
	}
	meta, err := yaml.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to render metadata: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n")
	buf.WriteString(r.Content)
	if len(r.Content) > 0 && r.Content[len(r.Content)-1] != '\n' {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ParseRendered 拆分渲染后的文档，返回元数据与正文
func ParseRendered(data []byte) (map[string]interface{}, string, error) {
	const sep = "---\n"
	if !bytes.HasPrefix(data, []byte(sep)) {
		return nil, string(data), nil
	}
	rest := data[len(sep):]
	end := bytes.Index(rest, []byte("\n"+sep))
	if end < 0 {
		return nil, "", fmt.Errorf("unterminated metadata block")
	}
	meta := map[string]interface{}{}
	if err := yaml.Unmarshal(rest[:end+1], &meta); err != nil {
		return nil, "", fmt.Errorf("failed to parse metadata: %w", err)
	}
	body := rest[end+1+len(sep):]
	return meta, string(bytes.TrimPrefix(body, []byte("\n"))), nil
}
