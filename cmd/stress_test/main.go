package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/slot-inventory/internal/adapter/storage"
	"github.com/rl1809/slot-inventory/internal/core/domain"
	"github.com/rl1809/slot-inventory/internal/core/service"
	"github.com/rl1809/slot-inventory/internal/port"
)

const (
	capacity      = 20
	totalRequests = 50
	unitsPerAdd   = 1
)

func main() {
	dsn := flag.String("mysql", "", "MySQL DSN; the in-memory store is used when empty")
	flag.Parse()

	ctx := context.Background()

	var store port.Store
	if *dsn == "" {
		mem, err := storage.NewMemoryAdapter()
		if err != nil {
			log.Fatalf("failed to create memory store: %v", err)
		}
		store = mem
	} else {
		db, err := sql.Open("mysql", *dsn)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(50)

		mysqlStore := storage.NewMySQLAdapter(db)
		if err := mysqlStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		store = mysqlStore
	}

	limits := domain.Limits{MaxSlots: 1000, MaxItemsPerSlot: 1000}
	slotService := service.NewSlotService(store, limits, nil)
	itemService := service.NewItemService(store, limits, nil)

	slot, err := slotService.CreateSlot(ctx, "stress-"+uuid.NewString()[:8], capacity)
	if err != nil {
		log.Fatalf("failed to create slot: %v", err)
	}
	defer slotService.DeleteSlot(ctx, slot.ID)

	// Counters
	var successCount atomic.Int32
	var rejectCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := itemService.AddItem(ctx, slot.ID, fmt.Sprintf("unit-%d", n), 100, unitsPerAdd)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrCapacityExceeded):
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Slot Capacity:    %d\n", capacity)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	want := int32(capacity / unitsPerAdd)
	if success == want && rejected == int32(totalRequests)-want {
		fmt.Printf("PASS: Exactly %d adds succeeded, %d rejected\n", want, rejected)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			want, int32(totalRequests)-want, success, rejected)
	}

	// Verify the counter against stored items
	final, err := slotService.GetSlot(ctx, slot.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to reload slot: %v", err)
	}
	items, err := itemService.ListItemsBySlot(ctx, slot.ID)
	if err != nil {
		log.Fatalf("failed to list items: %v", err)
	}
	sum := 0
	for _, it := range items {
		sum += it.Quantity
	}
	fmt.Printf("Final Counter:    %d (items sum %d)\n", final.CurrentItemCount, sum)

	if final.CurrentItemCount == sum && final.CurrentItemCount <= final.Capacity {
		fmt.Println("PASS: Counter matches items and stays within capacity")
	} else {
		fmt.Printf("FAIL: counter %d, items %d, capacity %d\n", final.CurrentItemCount, sum, final.Capacity)
	}
}
