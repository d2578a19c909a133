package service

import "github.com/safa0/google-rangerz/internal/domain"

// RoundRobinExercises перебирает типы упражнений по номеру хода: ход 1 - первый тип и т.д.
type RoundRobinExercises []domain.ExerciseType

func (r RoundRobinExercises) Pick(progression int) domain.ExerciseType {
	if len(r) == 0 {
		return domain.ExerciseFillInBlank
	}
	if progression < 1 {
		progression = 1
	}
	return r[(progression-1)%len(r)]
}

// FixedExercise один и тот же тип на каждом ходу.
type FixedExercise domain.ExerciseType

func (f FixedExercise) Pick(int) domain.ExerciseType { return domain.ExerciseType(f) }

var (
	_ ExercisePicker = RoundRobinExercises(nil)
	_ ExercisePicker = FixedExercise("")
)
