package txscope

import "context"

// The scope operations are single scoped-acquisition primitives; these
// helpers give them a second call shape, wrapping a unit of work ahead of
// time instead of at the call site. There is deliberately no WrapSavepoint:
// a savepoint only makes sense at a specific point inside a transaction, not
// baked into a function value.

// WrapTransaction returns fn wrapped in Scope.Transaction.
func (s *Scope) WrapTransaction(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.Transaction(ctx, fn)
	}
}

// WrapTransactionRequired returns fn wrapped in Scope.TransactionRequired.
func (s *Scope) WrapTransactionRequired(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.TransactionRequired(ctx, fn)
	}
}

// WrapTransactionIfNotAlready returns fn wrapped in Scope.TransactionIfNotAlready.
func (s *Scope) WrapTransactionIfNotAlready(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.TransactionIfNotAlready(ctx, fn)
	}
}

// WrapDurable returns fn wrapped in Manager.Durable.
func (m *Manager) WrapDurable(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return m.Durable(ctx, fn)
	}
}
