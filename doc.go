// Package lcdbank drives a bank of ST7735/ST7789 TFT panels that share one
// SPI bus, one data/command line and one reset line.
//
// Panels are addressed through a chain of cascaded shift registers whose
// outputs drive the panels' chip-select inputs. A Manager owns the chain and
// the panels; a Bank adds the board, a font and an image cache.
//
// # Hardware Connection
//
//	Panel Pin   → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	SCL/CLK     → SPI Clock (SCLK), shared
//	SDA/MOSI    → SPI Data (MOSI), shared
//	DC          → GPIO, shared
//	RES         → GPIO, shared
//	CS          → shift register output for the panel's slot
//
//	Chain Pin   → System Pin
//	CLK         → GPIO (CS_CLK)
//	DATA        → GPIO (CS_DAT)
//
// An optional input senses whether the panels have power.
//
// # Chip Select Chain
//
// For N slots the chain has N+2 stages. Stage 0 latches, slot i sits at
// stage i+1 and the last stage is spare. Selection is active low: selecting
// slot i shifts positions N down to 0, with DATA low only at position i,
// then one latch bit with DATA high. Selecting every slot shifts N+2 low
// bits and waits for the outputs to settle.
//
// # Basic Usage
//
//	board, err := hal.Open(hal.Config{
//		Backend: hal.Periph,
//		Reset:   "GPIO25",
//		DC:      "GPIO24",
//		CSClock: "GPIO17",
//		CSData:  "GPIO27",
//	}, log.Logger)
//	if err != nil {
//		log.Fatal().Err(err).Msg("failed to open board")
//	}
//	bank, err := lcdbank.NewBank(board, &lcdbank.BankOpts{Slots: 8})
//	if err != nil {
//		log.Fatal().Err(err).Msg("failed to create bank")
//	}
//	defer bank.Close()
//
//	opts, _ := st77xx.Preset("st7735-160", canvas.Rotate0)
//	d, _ := bank.AddDisplay(0, "left", opts, canvas.Orientation{})
//
//	if err := bank.InitAll(); err != nil {
//		log.Error().Err(err).Msg("init failed")
//	}
//
//	d.Clear(rgb565.Black)
//	d.DrawRect(10, 10, 60, 40, rgb565.Red)
//	d.DrawText(bank.Font, "hello", 4, 100, 16, canvas.Top, canvas.DefaultThreshold)
//	bank.UpdateDisplay(0)
//
// # Concurrency
//
// Every call that touches the bus takes the Manager's lock. Drawing only
// touches a display's frame buffer and may happen without it, but must be
// finished before the display is updated.
package lcdbank
