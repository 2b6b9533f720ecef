// Package kb связывает загрузчик, чанкер, эмбеддер и индекс в базу знаний
package kb

import (
	"fmt"

	"voice_rag/internal/index"
)

// KnowledgeBase - открытый индекс и место, где он хранится
type KnowledgeBase struct {
	Name     string
	Location string
	index    index.Index
}

// Open открывает базу знаний поверх выбранного бэкенда индекса
func Open(cfg index.Config) (*KnowledgeBase, error) {
	idx, err := index.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	name := cfg.Collection
	if name == "" {
		name = index.DefaultCollection
	}
	return &KnowledgeBase{Name: name, Location: cfg.Dir, index: idx}, nil
}

// New оборачивает уже открытый индекс
func New(name string, idx index.Index) *KnowledgeBase {
	return &KnowledgeBase{Name: name, index: idx}
}

func (kb *KnowledgeBase) Index() index.Index {
	return kb.index
}

func (kb *KnowledgeBase) Close() error {
	return kb.index.Close()
}
