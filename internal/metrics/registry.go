// Package metrics счётчики сервиса и их снимок.
//
// Registry только хранит числа. Изменяют их владельцы данных: хранилище (ссылки),
// ограничитель (допуски, отказы, клиенты). Глобальный bucket отдаёт свои токены сам через GlobalGauge.
package metrics

import (
	"sync/atomic"
)

// GlobalGauge живое состояние глобального bucket
type GlobalGauge interface {
	Capacity() int
	Tokens() float64
}

type gaugeRef struct {
	g GlobalGauge
}

// Registry атомарные счётчики
type Registry struct {
	linksStored    atomic.Int64
	linksResolved  atomic.Int64
	activeClients  atomic.Int64
	admitted       atomic.Int64
	globalRejected atomic.Int64
	clientRejected atomic.Int64
	global         atomic.Pointer[gaugeRef]
}

// NewRegistry пустой реестр
func NewRegistry() *Registry {
	return &Registry{}
}

// SetGlobal регистрирует глобальный bucket
func (r *Registry) SetGlobal(g GlobalGauge) {
	r.global.Store(&gaugeRef{g: g})
}

// LinkStored новая ссылка сохранена
func (r *Registry) LinkStored() { r.linksStored.Add(1) }

// LinkResolved успешный переход по ссылке
func (r *Registry) LinkResolved() { r.linksResolved.Add(1) }

// SetLinksStored начальное значение после рестарта
func (r *Registry) SetLinksStored(n int64) { r.linksStored.Store(n) }

// Admitted запрос допущен ограничителем
func (r *Registry) Admitted() { r.admitted.Add(1) }

// GlobalRejected отказ глобального bucket
func (r *Registry) GlobalRejected() { r.globalRejected.Add(1) }

// ClientRejected отказ клиентского bucket
func (r *Registry) ClientRejected() { r.clientRejected.Add(1) }

// ClientAdded создан bucket клиента
func (r *Registry) ClientAdded() { r.activeClients.Add(1) }

// ClientEvicted bucket клиента удалён уборщиком
func (r *Registry) ClientEvicted() { r.activeClients.Add(-1) }

// Snapshot точечная копия счётчиков. Каждое поле читается атомарно,
// но поля между собой могут отличаться на запросы, прошедшие во время чтения
type Snapshot struct {
	GlobalCapacity        int
	GlobalTokensAvailable int
	GlobalTokensUsed      int
	ActiveClientCount     int64
	TotalLinksStored      int64
	LinksResolved         int64
	Admitted              int64
	GlobalRejected        int64
	ClientRejected        int64
}

// Snapshot снимает текущие значения
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		ActiveClientCount: r.activeClients.Load(),
		TotalLinksStored:  r.linksStored.Load(),
		LinksResolved:     r.linksResolved.Load(),
		Admitted:          r.admitted.Load(),
		GlobalRejected:    r.globalRejected.Load(),
		ClientRejected:    r.clientRejected.Load(),
	}

	if ref := r.global.Load(); ref != nil {
		s.GlobalCapacity = ref.g.Capacity()
		s.GlobalTokensAvailable = int(ref.g.Tokens())
		s.GlobalTokensUsed = s.GlobalCapacity - s.GlobalTokensAvailable
	}
	return s
}
