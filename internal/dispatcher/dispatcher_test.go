package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/pool"
)

func TestPoolFor_RoutesByLuminaName(t *testing.T) {
	defaultPool := pool.New("default", 5)
	luminaPool := pool.New("lumina", 5)
	d := &Dispatcher{defaultPool: defaultPool, luminaPool: luminaPool}

	plain := &model.Subtask{Prompts: []model.PromptItem{{Name: "regular-character"}}}
	require.Equal(t, defaultPool, d.poolFor(plain))

	lumina := &model.Subtask{Prompts: []model.PromptItem{{Name: "Lumina-Style"}}}
	require.Equal(t, luminaPool, d.poolFor(lumina))
}

func TestToPromptPayloads_PreservesFields(t *testing.T) {
	items := []model.PromptItem{
		{Type: model.PromptFreetext, Value: "1girl", Weight: 1.5},
		{Type: model.PromptCharacter, Value: "uuid-1", Name: "hero", ImgURL: "http://img"},
	}
	payloads := toPromptPayloads(items)
	require.Len(t, payloads, 2)
	require.Equal(t, "1girl", payloads[0].Value)
	require.Equal(t, 1.5, payloads[0].Weight)
	require.Equal(t, "hero", payloads[1].Name)
	require.Equal(t, "http://img", payloads[1].ImgURL)
}
