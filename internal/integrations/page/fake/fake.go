package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/RegBox/internal/integrations/page"
)

// FakeFetcher — детерминированная заглушка страницы провайдера для локального
// запуска без сети. Часть URL считается "открытой" по хэшу.
type FakeFetcher struct{}

func New() *FakeFetcher { return &FakeFetcher{} }

func (f *FakeFetcher) Fetch(ctx context.Context, url string) (page.Result, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	v := h.Sum32()

	// 20% URL открыты
	body := "<html><body>Camp session details. Registration opens soon.</body></html>"
	if v%5 == 0 {
		body = "<html><body>Summer camp — Register Now!</body></html>"
	}

	return page.Result{Body: body, FetchedAt: time.Now().UTC()}, nil
}
