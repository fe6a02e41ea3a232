package sqlstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/pkg/store/sqlstore"
	"chatrelay/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Engine {
		s, err := sqlstore.Open(filepath.Join(t.TempDir(), "chat.db"), false)
		require.NoError(t, err)
		return s
	})
}
