package main

import (
	"fmt"
	"log"

	"duskdb"
)

func main() {
	db, err := duskdb.Open("example.db", nil)
	if err != nil {
		log.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	if err := db.Update(func(tx *duskdb.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte("config"))
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte("name"), []byte("duskdb")); err != nil {
			return err
		}
		if err := bucket.Put([]byte("version"), []byte("1")); err != nil {
			return err
		}
		child, err := bucket.CreateBucketIfNotExists([]byte("nested"))
		if err != nil {
			return err
		}
		return child.Put([]byte("feature"), []byte("pageful"))
	}); err != nil {
		log.Fatalf("update failed: %v", err)
	}

	if err := db.View(func(tx *duskdb.Tx) error {
		bucket := tx.Bucket([]byte("config"))
		if bucket == nil {
			return fmt.Errorf("missing bucket")
		}
		val := bucket.Get([]byte("name"))
		fmt.Printf("name=%s\n", val)

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			fmt.Printf("%s=%s\n", k, v)
		}
		return nil
	}); err != nil {
		log.Fatalf("view failed: %v", err)
	}
}
