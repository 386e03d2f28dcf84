package chat

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru"
	"github.com/weixuan0110/ctfbot/slog"
)

const (
	memberCacheSizeDisabledValue = 0
)

// cachingMemberFinder holds a cache and a loading MemberFinder to implement the MemberFinder loading entries from cache
type cachingMemberFinder struct {
	loader      MemberFinder
	logger      slog.Logger
	memberCache *lru.ARCCache
}

// NewCachingMemberFinder creates a new member finder with caching of found members if cacheSize is greater
// than 0. Unknown users are never cached so that someone joining the server is recognized right away
func NewCachingMemberFinder(cacheSize int, loader MemberFinder, logger slog.Logger) (mf MemberFinder, err error) {
	cmf := new(cachingMemberFinder)

	if cacheSize > memberCacheSizeDisabledValue {
		cmf.memberCache, err = lru.NewARC(cacheSize)
		if err != nil {
			return nil, err
		}
	}

	cmf.loader = loader
	cmf.logger = logger

	return cmf, nil
}

// Member gets the member from cache or from the loader
func (c *cachingMemberFinder) Member(ctx context.Context, userID string) (m Member, err error) {
	if c.memberCache == nil {
		c.logger.Debugf("Cache disabled, loading member [%s] from discord instead", userID)
		return c.loader.Member(ctx, userID)
	}

	if cached, exists := c.memberCache.Get(userID); exists {
		c.logger.Debugf("Member [%s] in cache so using that", userID)

		m, ok := cached.(Member)
		if !ok {
			return m, fmt.Errorf("Error converting cached value for user id [%s]", userID)
		}

		return m, nil
	}

	c.logger.Debugf("Member [%s] not found in cache, retrieving from discord and saving", userID)
	m, err = c.loader.Member(ctx, userID)
	if err != nil {
		return m, err
	}

	c.memberCache.Add(userID, m)

	return m, nil
}
