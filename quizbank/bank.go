package quizbank

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wfunc/partygame/models"
)

var ErrNotFound = errors.New("quiz question not found")

// Bank 题库接口，List 按 ord 升序返回
type Bank interface {
	List(ctx context.Context) ([]models.QuizQuestion, error)
	Get(ctx context.Context, id string) (models.QuizQuestion, error)
}

// MemoryBank keeps questions in process. Used for demos and tests.
type MemoryBank struct {
	mutex     sync.RWMutex
	questions []models.QuizQuestion
}

func NewMemoryBank(questions []models.QuizQuestion) *MemoryBank {
	b := &MemoryBank{}
	b.Replace(questions)
	return b
}

// Replace swaps the whole question set.
func (b *MemoryBank) Replace(questions []models.QuizQuestion) {
	sorted := append([]models.QuizQuestion(nil), questions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ord < sorted[j].Ord })

	b.mutex.Lock()
	b.questions = sorted
	b.mutex.Unlock()
}

func (b *MemoryBank) List(ctx context.Context) ([]models.QuizQuestion, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return append([]models.QuizQuestion(nil), b.questions...), nil
}

func (b *MemoryBank) Get(ctx context.Context, id string) (models.QuizQuestion, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	for _, q := range b.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return models.QuizQuestion{}, ErrNotFound
}

// DemoQuestions 内置的示例题目
func DemoQuestions() []models.QuizQuestion {
	return []models.QuizQuestion{
		{ID: "demo-1", Ord: 1, Question: "Where did the couple first meet?", Choices: [4]string{"At school", "At work", "At a party", "Online"}, CorrectIndex: 1},
		{ID: "demo-2", Ord: 2, Question: "How many years have they been together?", Choices: [4]string{"2", "4", "6", "8"}, CorrectIndex: 2},
		{ID: "demo-3", Ord: 3, Question: "Who said \"I love you\" first?", Choices: [4]string{"The groom", "The bride", "Both at once", "Neither yet"}, CorrectIndex: 0},
		{ID: "demo-4", Ord: 4, Question: "Where is the honeymoon?", Choices: [4]string{"Kyoto", "Lisbon", "Bali", "Reykjavik"}, CorrectIndex: 3},
		{ID: "demo-5", Ord: 5, Question: "What is their favourite food together?", Choices: [4]string{"Ramen", "Pizza", "Tacos", "Sushi"}, CorrectIndex: 0},
	}
}
