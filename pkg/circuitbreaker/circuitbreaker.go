package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State 表示熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭：正常状态，允许请求通过
	StateOpen                  // 打开：熔断状态，直接拒绝请求
	StateHalfOpen              // 半开：尝试恢复，允许少量请求通过
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Name identifies the breaker in logs and state change callbacks.
	Name string
	// 失败阈值：连续失败多少次后打开熔断器
	FailureThreshold int
	// 成功阈值：半开状态下成功多少次后关闭熔断器
	SuccessThreshold int
	// 超时时间：打开状态持续多久后进入半开状态
	Timeout time.Duration
	// 半开状态下的最大请求数
	HalfOpenMaxRequests int
	// IsFailure decides whether an error returned by the protected call counts
	// against the breaker. nil counts every non-nil error.
	IsFailure func(error) bool
	// OnStateChange is called after the breaker lock is released.
	OnStateChange func(name string, from, to State)
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,                // 连续失败5次后打开
		SuccessThreshold:    2,                // 半开状态下成功2次后关闭
		Timeout:             30 * time.Second, // 打开状态持续30秒
		HalfOpenMaxRequests: 3,                // 半开状态下最多允许3个请求
	}
}

type transition struct {
	from, to State
}

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	config Config

	state         State
	failureCount  int
	successCount  int
	halfOpenCount int
	lastStateTime time.Time

	mu sync.Mutex
}

// NewCircuitBreaker 创建新的熔断器
func NewCircuitBreaker(config Config) *CircuitBreaker {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		config:        config,
		state:         StateClosed,
		lastStateTime: config.Now(),
	}
}

func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Execute 执行函数，带熔断保护
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	changes := cb.advance()

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		cb.notify(changes)
		return ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			cb.mu.Unlock()
			cb.notify(changes)
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCount++
	}
	cb.mu.Unlock()
	cb.notify(changes)

	err := fn()

	cb.mu.Lock()
	if err != nil && cb.config.IsFailure(err) {
		changes = cb.onFailure()
	} else {
		changes = cb.onSuccess()
	}
	cb.mu.Unlock()
	cb.notify(changes)

	return err
}

// advance 检查并执行状态转换
func (cb *CircuitBreaker) advance() []transition {
	now := cb.config.Now()
	if cb.state == StateOpen && now.Sub(cb.lastStateTime) >= cb.config.Timeout {
		return cb.moveTo(StateHalfOpen, now)
	}
	return nil
}

func (cb *CircuitBreaker) onFailure() []transition {
	now := cb.config.Now()
	switch cb.state {
	case StateHalfOpen:
		// 半开状态下失败，立即打开
		return cb.moveTo(StateOpen, now)
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			return cb.moveTo(StateOpen, now)
		}
	}
	return nil
}

func (cb *CircuitBreaker) onSuccess() []transition {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		cb.halfOpenCount--
		if cb.successCount >= cb.config.SuccessThreshold {
			return cb.moveTo(StateClosed, cb.config.Now())
		}
	case StateClosed:
		cb.failureCount = 0
	}
	return nil
}

func (cb *CircuitBreaker) moveTo(to State, now time.Time) []transition {
	from := cb.state
	cb.state = to
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCount = 0
	cb.lastStateTime = now
	return []transition{{from: from, to: to}}
}

func (cb *CircuitBreaker) notify(changes []transition) {
	if cb.config.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		cb.config.OnStateChange(cb.config.Name, c.from, c.to)
	}
}

// GetState 获取当前状态（线程安全）
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 重置熔断器
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changes := []transition(nil)
	if cb.state != StateClosed {
		changes = cb.moveTo(StateClosed, cb.config.Now())
	}
	cb.mu.Unlock()
	cb.notify(changes)
}

// 错误定义
var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)
