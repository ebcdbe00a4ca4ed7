package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/vector"
	"github.com/engramhq/engram/pkg/vector/inmemory"
	"github.com/engramhq/engram/pkg/vector/qdrantvec"
	"github.com/engramhq/engram/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	Path         string
	Host         string
	Port         int
	Collection   string
	Dimensions   uint
	Logger       *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "memory":
		return inmemory.NewDriver(), nil
	case "sqlite-vec":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Path,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrantvec.NewQdrantDriver(qdrantvec.Config{
			Host:           o.Host,
			Port:           o.Port,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
