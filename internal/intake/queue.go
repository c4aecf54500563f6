package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"trade_executor/internal/models"
)

var (
	ErrQueueFull   = errors.New("intake: queue is full")
	ErrQueueClosed = errors.New("intake: queue is closed")
)

// Job: конверт в очереди исполнения.
type Job struct {
	ID         string
	Envelope   Envelope
	ReceivedAt time.Time
	// Done получает результат, если отправитель ждёт исполнения
	Done chan<- models.ExecutionResult
}

// Queue: ограниченная очередь конвертов. Переполнение отклоняется сразу, без ожидания.
type Queue struct {
	ch     chan Job
	closed chan struct{}
	now    func() time.Time
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		ch:     make(chan Job, size),
		closed: make(chan struct{}),
		now:    time.Now,
	}
}

// Submit ставит конверт в очередь и возвращает id задания.
func (q *Queue) Submit(env Envelope) (string, error) {
	return q.submit(Job{Envelope: env})
}

// SubmitWait ставит конверт и ждёт результат исполнения или отмены ctx.
func (q *Queue) SubmitWait(ctx context.Context, env Envelope) (string, models.ExecutionResult, error) {
	done := make(chan models.ExecutionResult, 1)
	id, err := q.submit(Job{Envelope: env, Done: done})
	if err != nil {
		return "", models.ExecutionResult{}, err
	}
	select {
	case res := <-done:
		return id, res, nil
	case <-ctx.Done():
		return id, models.ExecutionResult{}, ctx.Err()
	}
}

func (q *Queue) submit(job Job) (string, error) {
	select {
	case <-q.closed:
		return "", ErrQueueClosed
	default:
	}

	job.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	job.ReceivedAt = q.now()
	select {
	case q.ch <- job:
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Jobs: канал для потребителя. Закрывается через Close.
func (q *Queue) Jobs() <-chan Job { return q.ch }

func (q *Queue) Len() int { return len(q.ch) }

// Close запрещает новые задания; уже поставленные остаются в канале.
func (q *Queue) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

// Closed сигнализирует о закрытии очереди.
func (q *Queue) Closed() <-chan struct{} { return q.closed }
