package core

import (
	"context"
	"time"

	mdb "github.com/fixkme/fastgrpc/db/mongo"
)

var Mongo *mdb.MongoImpl

func InitMongo(conf *mdb.MongoConf) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	Mongo, err = mdb.NewMongo(ctx, conf)
	return
}
