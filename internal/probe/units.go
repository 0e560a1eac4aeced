package probe

import "periph.io/x/conn/v3/physic"

// Temperature converts degrees Celsius to a physic.Temperature.
func Temperature(celsius float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(celsius*float64(physic.Celsius))
}

// Fahrenheit converts degrees Celsius to degrees Fahrenheit.
func Fahrenheit(celsius float64) float64 {
	return float64(Temperature(celsius)-physic.ZeroFahrenheit) / float64(physic.Fahrenheit)
}
