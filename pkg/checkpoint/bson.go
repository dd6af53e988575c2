package checkpoint

import "go.mongodb.org/mongo-driver/bson"

func bsonMarshal(rec Record) ([]byte, error) {
	return bson.Marshal(rec)
}

func bsonUnmarshal(raw []byte, rec *Record) error {
	return bson.Unmarshal(raw, rec)
}
